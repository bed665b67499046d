package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DobryySoul/meshsync"
	"github.com/DobryySoul/meshsync/model"
)

var (
	syncOnStart bool
	chatAs      string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)

	for _, cmd := range []*cobra.Command{runCmd, chatCmd} {
		flags := cmd.Flags()
		flags.Int("port", meshsync.DefaultPort, "mesh UDP port")
		flags.Int("relay-port", 0, "second listener port (0 disables)")
		flags.StringSlice("seed", nil, "extra unicast endpoint ip:port (repeatable)")
		flags.Bool("discovery", true, "advertise and browse with mDNS")
		flags.BoolVar(&syncOnStart, "sync", false, "request a full sync right after start")
	}
	chatCmd.Flags().StringVar(&chatAs, "as", "", "display name for outgoing messages (default: device name)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mesh node in the foreground",
	Long: `Run a mesh node in the foreground until interrupted.

Records received from other devices are stored in the local SQLite database
and printed as they arrive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNode(cmd, nil)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a mesh node and broadcast each stdin line as a chat message",
	Long: `Run a mesh node and broadcast each line read from stdin as a chat message.

Lines starting with a slash are commands: /peers, /sync, /stats, /quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNode(cmd, cmd.InOrStdin())
	},
}

// bindNodeFlags points the shared config keys at the flags of the command
// being run.
func bindNodeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	bindFlag(v, "port", flags.Lookup("port"))
	bindFlag(v, "relay_port", flags.Lookup("relay-port"))
	bindFlag(v, "seeds", flags.Lookup("seed"))
	bindFlag(v, "discovery", flags.Lookup("discovery"))
}

func runNode(cmd *cobra.Command, input io.Reader) error {
	bindNodeFlags(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	engine, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := newPrinter(cmd.OutOrStdout())
	engine.OnUser(out.user)
	engine.OnMealPlan(out.mealPlan)
	engine.OnChatMessage(out.chat)
	engine.OnPeersChanged(out.peers)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(); err != nil {
		return err
	}
	out.started(engine.Identity(), engine.LocalAddr())
	if syncOnStart {
		if err := engine.RequestFullSync(); err != nil {
			out.warn("sync request: %v", err)
		}
	}

	if input != nil {
		name := chatAs
		if name == "" {
			name = engine.Identity().Name
		}
		sess := model.Session{UserID: engine.Identity().DeviceID, DisplayName: name}
		go func() {
			readChat(ctx, engine, sess, input, out)
			stop()
		}()
	}

	<-ctx.Done()
	return engine.Stop()
}

// readChat handles stdin lines until EOF, /quit or cancellation.
func readChat(ctx context.Context, engine *meshsync.Engine, sess model.Session, input io.Reader, out *printer) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/peers":
			out.peers(engine.CurrentPeers())
		case "/stats":
			out.stats(engine.Stats())
		case "/sync":
			if err := engine.RequestFullSync(); err != nil {
				out.warn("sync request: %v", err)
			}
		default:
			if err := engine.BroadcastRecord(sess, sess.NewChatMessage(line)); err != nil {
				out.warn("send: %v", err)
			}
		}
	}
}
