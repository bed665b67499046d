package cli

import (
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/DobryySoul/meshsync"
	"github.com/DobryySoul/meshsync/model"
)

var (
	tagColor  = color.New(color.FgHiBlack)
	peerColor = color.New(color.FgCyan, color.Bold)
	userColor = color.New(color.FgGreen)
	planColor = color.New(color.FgYellow)
	chatColor = color.New(color.FgMagenta, color.Bold)
	warnColor = color.New(color.FgRed)
)

// printer renders engine events as one line each. Listeners fire on
// engine goroutines, so writes are serialized.
type printer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, now: time.Now}
}

func (p *printer) line(c *color.Color, tag, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s\n",
		tagColor.Sprint(p.now().Format("15:04:05")),
		c.Sprintf("%-6s", tag),
		fmt.Sprintf(format, args...),
	)
}

func (p *printer) started(id meshsync.DeviceIdentity, addr netip.AddrPort) {
	p.line(peerColor, "mesh", "%s (%s) listening on %s", id.Name, id.DeviceID, addr)
}

func (p *printer) user(u model.User) {
	p.line(userColor, "user", "%s %q role=%s v%d", u.Username, u.Name, u.Role, u.Version)
}

func (p *printer) mealPlan(mp model.MealPlan) {
	p.line(planColor, "plan", "%s week %d/%d meals=%d v%d", mp.ID, mp.WeekNumber, mp.Year, len(mp.Meals), mp.Version)
}

func (p *printer) chat(m model.ChatMessage) {
	p.line(chatColor, "chat", "<%s> %s", m.SenderName, m.Content)
}

func (p *printer) peers(peers []meshsync.PeerInfo) {
	p.line(peerColor, "peers", "%d known", len(peers))
	for _, peer := range peers {
		via := "direct"
		if !peer.Direct {
			via = "relayed"
		}
		p.line(peerColor, "", "  %s %s %s (%s)", peer.DeviceID, peer.DisplayName, peer.Endpoint, via)
	}
}

func (p *printer) stats(s meshsync.Stats) {
	p.line(tagColor, "stats", "peers=%d rx=%d tx=%d relayed=%d applied=%d dup=%d malformed=%d",
		s.Peers, s.PacketsReceived, s.PacketsSent, s.Relayed, s.RecordsApplied, s.Duplicates, s.Malformed)
}

func (p *printer) warn(format string, args ...any) {
	p.line(warnColor, "error", format, args...)
}
