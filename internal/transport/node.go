// Package transport serves remote.Service over TCP so ranks in separate
// processes can exchange halo slabs.
//
// Every rank listens on its own address. A fetch dials the owner, sends one
// MsgHaloFetch frame and waits for the MsgHaloSlab (or MsgHaloError) reply;
// the owner answers once the slab has been exposed in its local store.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/protocol"
	"github.com/danmuck/halostencil/internal/protocol/frame"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/rs/zerolog/log"
)

// Node is one rank's endpoint in a TCP cluster.
type Node struct {
	rank  int
	cfg   Config
	store *remote.Store

	epochs atomic.Uint64
	nextID atomic.Uint64

	rngMu sync.Mutex
	rng   *rand.Rand

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

var _ remote.Service = (*Node)(nil)

func NewNode(rank int, cfg Config) (*Node, error) {
	if err := cfg.Validate(rank); err != nil {
		return nil, err
	}
	peers := make(map[int]string, len(cfg.Peers))
	for r, addr := range cfg.Peers {
		peers[r] = addr
	}
	cfg.Peers = peers
	return &Node{
		rank:  rank,
		cfg:   cfg,
		store: remote.NewStore(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano() + int64(rank))),
		conns: make(map[net.Conn]struct{}),
	}, nil
}

func (n *Node) Rank() int { return n.rank }

// Pending returns the number of slabs this rank still holds.
func (n *Node) Pending() int { return n.store.Pending() }

// Allocate opens the next exchange window. Ranks allocate in lockstep, so
// the local window count is the shared epoch.
func (n *Node) Allocate(grid.Shape) (remote.Window, error) {
	return remote.NewWindow(n.rank, n.epochs.Add(1), n.store, n.fetch), nil
}

func (n *Node) Listen() (net.Listener, error) {
	return net.Listen("tcp", n.cfg.ListenAddr)
}

// Serve answers fetch requests on ln until ctx is done. It returns after
// every connection handler has exited.
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = ln.Close()
		n.closeAllConns()
		n.wg.Wait()
	}()
	stop := context.AfterFunc(serveCtx, func() { _ = ln.Close() })
	defer stop()

	log.Info().Int("rank", n.rank).Str("addr", ln.Addr().String()).Msg("transport.serve")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if serveCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		n.trackConn(conn)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleConn(serveCtx, conn)
		}()
	}
}

// handleConn answers exactly one fetch. A requester that hangs up while the
// slab is still unexposed abandons the wait.
func (n *Node) handleConn(ctx context.Context, conn net.Conn) {
	defer n.untrackConn(conn)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	if n.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(n.cfg.ReadTimeout))
	}
	fr, err := frame.ReadFrame(reader, n.cfg.Limits)
	if err != nil {
		log.Warn().Err(err).Int("rank", n.rank).Str("remote", conn.RemoteAddr().String()).Msg("transport.handleConn read")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	id := fr.Header.MessageID
	req, err := protocol.DecodeFetch(fr)
	if err != nil {
		n.reply(conn, protocol.EncodeError(id, err.Error()))
		return
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// the requester sends nothing more; any read result means it left
		_, _ = reader.ReadByte()
		cancel()
	}()

	slab, err := n.store.Take(waitCtx, req.Epoch, req.Handle)
	if err != nil {
		log.Debug().Err(err).Int("rank", n.rank).Int("requester", req.Requester).Str("handle", req.Handle.String()).Msg("transport.handleConn take")
		n.reply(conn, protocol.EncodeError(id, err.Error()))
		return
	}
	n.reply(conn, protocol.EncodeSlab(id, protocol.SlabReply{Epoch: req.Epoch, Handle: req.Handle, Slab: slab}))
}

func (n *Node) reply(conn net.Conn, f frame.Frame) {
	if n.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(conn, f, n.cfg.Limits); err != nil {
		log.Warn().Err(err).Int("rank", n.rank).Msg("transport.reply")
	}
}

func (n *Node) fetch(ctx context.Context, rank int, epoch uint64, h remote.Handle) (*grid.Array, error) {
	if rank == n.rank {
		return n.store.Take(ctx, epoch, h)
	}
	addr, ok := n.cfg.Peers[rank]
	if !ok {
		return nil, fmt.Errorf("%w: no address for rank %d", remote.ErrUnknownRank, rank)
	}
	conn, err := n.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial rank %d at %s: %w", rank, addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	id := n.nextID.Add(1)
	if n.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
	}
	req := protocol.FetchRequest{Epoch: epoch, Handle: h, Requester: n.rank}
	if err := frame.WriteFrame(conn, protocol.EncodeFetch(id, req), n.cfg.Limits); err != nil {
		return nil, n.ctxErr(ctx, err)
	}
	if n.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(n.cfg.ReadTimeout))
	}
	fr, err := frame.ReadFrame(bufio.NewReader(conn), n.cfg.Limits)
	if err != nil {
		return nil, n.ctxErr(ctx, err)
	}
	if fr.Header.MessageID != id {
		return nil, fmt.Errorf("transport: reply %d to request %d", fr.Header.MessageID, id)
	}
	rep, err := protocol.DecodeReply(fr)
	if err != nil {
		return nil, err
	}
	if rep.Epoch != epoch || rep.Handle != h {
		return nil, fmt.Errorf("%w: got %s@%d want %s@%d", protocol.ErrMessageTypeMismatch, rep.Handle, rep.Epoch, h, epoch)
	}
	return rep.Slab, nil
}

// dial connects to addr, retrying with backoff until ConnectTimeout. Peers
// of a fresh cluster start in any order.
func (n *Node) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, n.cfg.ConnectTimeout)
	defer cancel()
	var dialer net.Dialer
	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		log.Debug().Err(err).Int("rank", n.rank).Str("addr", addr).Int("attempt", attempt).Msg("transport.dial retry")
		if err := n.sleepBackoff(dialCtx, attempt); err != nil {
			return nil, err
		}
	}
}

func (n *Node) sleepBackoff(ctx context.Context, attempt int) error {
	n.rngMu.Lock()
	delay := NextBackoffDelay(n.cfg.Backoff, attempt, n.rng)
	n.rngMu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ctxErr prefers the caller's cancellation over the closed-socket error it
// caused.
func (n *Node) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("transport: %w", err)
}

func (n *Node) trackConn(conn net.Conn) {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	n.conns[conn] = struct{}{}
}

func (n *Node) untrackConn(conn net.Conn) {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	delete(n.conns, conn)
}

func (n *Node) closeAllConns() {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	for conn := range n.conns {
		_ = conn.Close()
	}
}
