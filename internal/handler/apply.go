package handler

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"redisk/internal/protocol"
	"redisk/internal/registry"
	"redisk/internal/replication"
	"redisk/internal/storage"
)

// Deps bundles everything Apply needs to execute a command: the
// shared store and replication state (both guarded by Mutex), the
// connection registry used to address replies and replication
// fan-out, the fixed snapshot payload, and a logger.
type Deps struct {
	Mutex    sync.Locker
	Store    *storage.Store
	Repl     *replication.State
	Registry *registry.Registry
	Snapshot []byte
	Log      *logrus.Logger
}

// Apply executes cmd on behalf of the connection registered under
// originAddr, writing its reply through the registry. Replication
// fan-out to registered replicas happens after the client has already
// received its reply, and a failure to reach one replica never fails
// the command.
func Apply(d Deps, cmd *Command, originAddr string) error {
	switch cmd.Kind {
	case KindPing:
		return d.Registry.WriteFrame(originAddr, protocol.Simple("PONG"))

	case KindEcho:
		return d.Registry.WriteFrame(originAddr, protocol.Bulk(cmd.EchoArg))

	case KindCommand:
		return d.Registry.WriteFrame(originAddr, protocol.Array())

	case KindGet:
		d.Mutex.Lock()
		v, ok := d.Store.Get(cmd.Key)
		d.Mutex.Unlock()
		if !ok {
			return d.Registry.WriteFrame(originAddr, protocol.NullBulk())
		}
		return d.Registry.WriteFrame(originAddr, protocol.Bulk(v))

	case KindSet:
		return applySet(d, cmd, originAddr)

	case KindInfo:
		return applyInfo(d, cmd, originAddr)

	case KindReplConf:
		return applyReplConf(d, cmd, originAddr)

	case KindPSync:
		return applyPSync(d, cmd, originAddr)

	case KindUnknown:
		return d.Registry.WriteFrame(originAddr, protocol.Err(fmt.Sprintf("ERR unknown command '%s'", cmd.Name)))

	default:
		return d.Registry.WriteFrame(originAddr, protocol.Err("ERR unknown command"))
	}
}

func applySet(d Deps, cmd *Command, originAddr string) error {
	var expiresAt *int64
	if cmd.ExpiryUnit != ExpiryNone {
		now := time.Now().UnixMilli()
		var deadline int64
		switch cmd.ExpiryUnit {
		case ExpirySeconds:
			deadline = now + cmd.ExpiryN*1000
		case ExpiryMillis:
			deadline = now + cmd.ExpiryN
		}
		expiresAt = &deadline
	}

	d.Mutex.Lock()
	d.Store.Insert(cmd.Key, cmd.Value, expiresAt)
	replicas := d.Repl.Replicas()
	d.Mutex.Unlock()

	if err := d.Registry.WriteFrame(originAddr, protocol.Simple("OK")); err != nil {
		return err
	}

	replFrame := protocol.Array(
		protocol.BulkString("SET"),
		protocol.BulkString(cmd.Key),
		protocol.Bulk(cmd.Value),
	)
	for _, addr := range replicas {
		if err := d.Registry.WriteFrame(addr, replFrame); err != nil {
			d.Log.WithField("replica", addr).WithError(err).Warn("replication fan-out failed")
		}
	}
	return nil
}

func applyInfo(d Deps, cmd *Command, originAddr string) error {
	if cmd.Section != "replication" {
		return d.Registry.WriteFrame(originAddr, protocol.Err("ERR: Invalid section"))
	}
	d.Mutex.Lock()
	body := d.Repl.Info()
	d.Mutex.Unlock()
	return d.Registry.WriteFrame(originAddr, protocol.BulkString(body))
}

func applyReplConf(d Deps, cmd *Command, originAddr string) error {
	switch cmd.ReplConfOption {
	case "listening-port", "capa":
		return d.Registry.WriteFrame(originAddr, protocol.Simple("OK"))
	case "getack":
		// The correct reply echoes the replica's processed offset; this
		// always sends 0.
		return d.Registry.WriteFrame(originAddr, protocol.Array(
			protocol.BulkString("REPLCONF"),
			protocol.BulkString("ACK"),
			protocol.BulkString("0"),
		))
	default:
		return d.Registry.WriteFrame(originAddr, protocol.Err(fmt.Sprintf("ERR unknown REPLCONF option '%s'", cmd.ReplConfOption)))
	}
}

func applyPSync(d Deps, cmd *Command, originAddr string) error {
	d.Mutex.Lock()
	if d.Repl.Role != replication.RoleMaster {
		d.Mutex.Unlock()
		return d.Registry.WriteFrame(originAddr, protocol.Err("ERR: PSYNC is only valid against a master"))
	}
	if cmd.PSyncReplID == d.Repl.ReplID {
		d.Mutex.Unlock()
		// Partial resync is not implemented; reject rather than silently
		// pretending to honor it.
		return d.Registry.WriteFrame(originAddr, protocol.Err("ERR: partial resynchronization not supported"))
	}
	replID := d.Repl.ReplID
	offset := d.Repl.Offset
	d.Mutex.Unlock()

	resync := protocol.Simple(fmt.Sprintf("FULLRESYNC %s %d", replID, offset))
	if err := d.Registry.WriteFrame(originAddr, resync); err != nil {
		return err
	}
	if err := d.Registry.WriteFrame(originAddr, protocol.File(d.Snapshot)); err != nil {
		return err
	}

	d.Mutex.Lock()
	err := d.Repl.AddReplica(originAddr)
	d.Mutex.Unlock()
	return err
}

