// Package server wires the store, replication state, and connection
// registry together behind a TCP accept loop and a per-connection
// request loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"redisk/internal/handler"
	"redisk/internal/protocol"
	"redisk/internal/registry"
	"redisk/internal/replica"
	"redisk/internal/replication"
	"redisk/internal/snapshot"
	"redisk/internal/storage"
)

// Server owns the shared state and the listener. mu guards Store and
// Repl together, per the single-lock concurrency model; it is never
// held across network I/O.
type Server struct {
	cfg *Config
	log *logrus.Logger

	mu    sync.Mutex
	Store *storage.Store
	Repl  *replication.State

	Registry *registry.Registry
	listener net.Listener
}

// New constructs a Server from cfg. When cfg.IsReplica(), Repl starts
// in slave role pointed at the parsed upstream address.
func New(cfg *Config, log *logrus.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		log:      log,
		Store:    storage.New(),
		Registry: registry.New(),
	}
	if cfg.IsReplica() {
		upstream, err := parseReplicaOf(cfg.ReplicaOf)
		if err != nil {
			return nil, err
		}
		s.Repl = replication.NewReplica(cfg.Port, upstream)
	} else {
		s.Repl = replication.NewMaster(cfg.Port)
	}
	return s, nil
}

func parseReplicaOf(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return "", fmt.Errorf("server: --replicaof expects \"<host> <port>\", got %q", raw)
	}
	return net.JoinHostPort(fields[0], fields[1]), nil
}

// ListenAndServe binds the listener and, if configured as a replica,
// starts the replica worker before accepting client connections. It
// blocks until ctx is canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.log.WithField("addr", addr).Info("listening")

	if s.cfg.IsReplica() {
		w := &replica.Worker{
			UpstreamAddr:  s.Repl.UpstreamAddr,
			ListeningPort: s.cfg.Port,
			Store:         s.Store,
			Mutex:         &s.mu,
			Registry:      s.Registry,
			Log:           s.log,
		}
		go func() {
			if err := w.Run(); err != nil {
				s.log.WithError(err).Error("replica worker exited")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// handleConn registers conn under its remote address and repeatedly
// reads a frame, parses a command, and applies it until EOF or an
// I/O error.
func (s *Server) handleConn(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	s.Registry.Add(addr, conn)
	log := s.log.WithField("peer", addr)
	log.Info("connection accepted")

	deps := handler.Deps{
		Mutex:    &s.mu,
		Store:    s.Store,
		Repl:     s.Repl,
		Registry: s.Registry,
		Snapshot: snapshot.Empty,
		Log:      s.log,
	}

	for {
		f, err := s.Registry.ReadFrame(addr, false)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("connection closed")
			} else {
				log.WithError(err).Warn("connection terminated")
			}
			return
		}

		cmd, err := handler.Parse(f)
		if err != nil {
			if werr := s.Registry.WriteFrame(addr, protocol.Err(err.Error())); werr != nil {
				log.WithError(werr).Warn("failed to write error reply")
				return
			}
			continue
		}

		if err := handler.Apply(deps, cmd, addr); err != nil {
			log.WithError(err).Warn("apply failed, closing connection")
			return
		}
	}
}
