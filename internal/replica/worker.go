// Package replica implements the background worker that runs on a
// node started with --replicaof: it performs the handshake against
// the upstream primary, discards the snapshot, then applies the
// live replication stream to the local store.
package replica

import (
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
	"redisk/internal/storage"
)

// Worker drives the handshake and apply loop against one upstream.
type Worker struct {
	UpstreamAddr  string
	ListeningPort int
	Store         *storage.Store
	// Mutex guards Store; it must be the same lock client connections
	// use around their own store access, since Store is not safe for
	// concurrent use on its own.
	Mutex    sync.Locker
	Registry *registry.Registry
	Log      *logrus.Logger
}

// Run dials the upstream, performs the four-step handshake, discards
// the snapshot, then applies SET commands from the replication stream
// until EOF or an I/O error.
func (w *Worker) Run() error {
	conn, err := net.Dial("tcp", w.UpstreamAddr)
	if err != nil {
		return fmt.Errorf("replica: dial upstream: %w", err)
	}
	w.Registry.Add(w.UpstreamAddr, conn)

	if err := w.handshake(); err != nil {
		conn.Close()
		return fmt.Errorf("replica: handshake: %w", err)
	}

	// The snapshot is transferred but not applied: persistence is out
	// of scope, so the replica starts from an empty store regardless of
	// what the primary's snapshot contained.
	if _, err := w.Registry.ReadFrame(w.UpstreamAddr, true); err != nil {
		return fmt.Errorf("replica: reading snapshot: %w", err)
	}
	w.Log.WithField("upstream", w.UpstreamAddr).Info("received snapshot, entering apply loop")

	return w.applyLoop()
}

func (w *Worker) handshake() error {
	steps := []struct {
		send protocol.Frame
		want func(protocol.Frame) error
	}{
		{
			send: protocol.Array(protocol.BulkString("PING")),
			want: expectSimple("pong"),
		},
		{
			send: protocol.Array(
				protocol.BulkString("REPLCONF"),
				protocol.BulkString("listening-port"),
				protocol.BulkString(strconv.Itoa(w.ListeningPort)),
			),
			want: expectSimple("ok"),
		},
		{
			send: protocol.Array(
				protocol.BulkString("REPLCONF"),
				protocol.BulkString("capa"),
				protocol.BulkString("psync2"),
			),
			want: expectSimple("ok"),
		},
		{
			send: protocol.Array(
				protocol.BulkString("PSYNC"),
				protocol.BulkString("?"),
				protocol.BulkString("-1"),
			),
			want: expectFullresync,
		},
	}

	for _, step := range steps {
		if err := w.Registry.WriteFrame(w.UpstreamAddr, step.send); err != nil {
			return err
		}
		reply, err := w.Registry.ReadFrame(w.UpstreamAddr, false)
		if err != nil {
			return err
		}
		if err := step.want(reply); err != nil {
			return err
		}
	}
	return nil
}

func expectSimple(want string) func(protocol.Frame) error {
	return func(f protocol.Frame) error {
		if f.Kind != protocol.KindSimple || strings.ToLower(f.Str) != want {
			return fmt.Errorf("expected +%s, got %s", strings.ToUpper(want), f.String())
		}
		return nil
	}
}

func expectFullresync(f protocol.Frame) error {
	if f.Kind != protocol.KindSimple || !strings.HasPrefix(f.Str, "FULLRESYNC") {
		return fmt.Errorf("expected FULLRESYNC, got %s", f.String())
	}
	return nil
}

// applyLoop reads frames from the upstream's replication stream,
// applying only SET commands; anything else is logged and skipped.
func (w *Worker) applyLoop() error {
	for {
		f, err := w.Registry.ReadFrame(w.UpstreamAddr, false)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("replica: apply loop: %w", err)
		}

		cmd, err := handler.Parse(f)
		if err != nil {
			w.Log.WithError(err).Warn("skipping malformed replicated frame")
			continue
		}

		switch cmd.Kind {
		case handler.KindSet:
			var expiresAt *int64
			w.Mutex.Lock()
			w.Store.Insert(cmd.Key, cmd.Value, expiresAt)
			w.Mutex.Unlock()
		default:
			w.Log.WithField("kind", cmd.Kind).Debug("skipping non-SET replicated command")
		}
	}
}
