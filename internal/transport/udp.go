// Package transport owns the UDP sockets used by the mesh.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// MaxDatagram is the receive buffer size; larger datagrams are truncated.
const MaxDatagram = 64 * 1024

// ErrBind is returned when the socket cannot be bound.
var ErrBind = errors.New("transport: bind failed")

// ErrSend matches every *SendError.
var ErrSend = errors.New("transport: send failed")

type SendError struct {
	Addr netip.AddrPort
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport: send to %s: %v", e.Addr, e.Err)
}

func (e *SendError) Unwrap() []error {
	return []error{ErrSend, e.Err}
}

// Handler receives one datagram. data is only valid for the duration of
// the call.
type Handler func(data []byte, from netip.AddrPort)

type UDP struct {
	conn    *net.UDPConn
	handler Handler
	onError func(error)
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Listen binds addr with address reuse and broadcast enabled and starts
// the receive loop.
func Listen(addr string, handler Handler, onError func(error)) (*UDP, error) {
	if onError == nil {
		onError = func(error) {}
	}
	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBind, addr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %s: not a UDP socket", ErrBind, addr)
	}

	u := &UDP{
		conn:    conn,
		handler: handler,
		onError: onError,
	}
	u.wg.Add(1)
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	defer u.wg.Done()
	buf := make([]byte, MaxDatagram)

	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || u.closed.Load() {
				return
			}
			u.onError(fmt.Errorf("transport: receive: %w", err))
			continue
		}
		if n == 0 {
			continue
		}
		u.dispatch(buf[:n], netip.AddrPortFrom(from.Addr().Unmap(), from.Port()))
	}
}

func (u *UDP) dispatch(data []byte, from netip.AddrPort) {
	defer func() {
		if r := recover(); r != nil {
			u.onError(fmt.Errorf("transport: handler panic from %s: %v", from, r))
		}
	}()
	u.handler(data, from)
}

func (u *UDP) Send(data []byte, to netip.AddrPort) error {
	if u.closed.Load() {
		return &SendError{Addr: to, Err: net.ErrClosed}
	}
	if _, err := u.conn.WriteToUDPAddrPort(data, to); err != nil {
		return &SendError{Addr: to, Err: err}
	}
	return nil
}

func (u *UDP) LocalAddr() netip.AddrPort {
	ap := u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Close closes the socket and waits for the receive loop to exit.
func (u *UDP) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := u.conn.Close()
	u.wg.Wait()
	return err
}
