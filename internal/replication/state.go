// Package replication holds the primary/replica bookkeeping: role,
// replication identifier and offset, and (on a primary) the set of
// addresses that have completed a PSYNC handshake.
package replication

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is either RoleMaster or RoleSlave, matching the wire text used
// in the INFO replication body.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// State is the replication bookkeeping shared across the server, held
// under the same mutex as the store.
type State struct {
	Role Role

	// ReplID is a 40-character opaque identifier for this primary's
	// history. A replica also generates its own at startup; it does not
	// store the identifier sent in the primary's FULLRESYNC reply.
	ReplID string

	// Offset is the replication stream offset. Left unchanged here;
	// whether it should advance per-replicated-command is an open
	// question this repository does not resolve.
	Offset int64

	// ListeningPort is this node's own listening port, announced to
	// an upstream via REPLCONF listening-port during the handshake.
	ListeningPort int

	// UpstreamAddr is set only on a replica: the "host:port" of its
	// primary.
	UpstreamAddr string

	// replicas is the ordered list of addresses that have completed a
	// PSYNC handshake against this primary. Only meaningful when
	// Role == RoleMaster.
	replicas []string
}

// NewMaster returns fresh primary-role state with a new replication
// identifier and offset 0.
func NewMaster(listeningPort int) *State {
	return &State{
		Role:          RoleMaster,
		ReplID:        newReplID(),
		Offset:        0,
		ListeningPort: listeningPort,
	}
}

// NewReplica returns fresh replica-role state pointed at upstreamAddr.
// It gets a freshly generated replication identifier, like a primary;
// the identifier in the primary's FULLRESYNC reply is not recorded.
func NewReplica(listeningPort int, upstreamAddr string) *State {
	return &State{
		Role:          RoleSlave,
		ReplID:        newReplID(),
		Offset:        0,
		ListeningPort: listeningPort,
		UpstreamAddr:  upstreamAddr,
	}
}

// newReplID produces a 40-character hex identifier from two UUIDs'
// raw bytes (32 bytes total, truncated to 20 -> 40 hex characters).
func newReplID() string {
	a := uuid.New()
	b := uuid.New()
	raw := append(a[:], b[:]...)
	return hex.EncodeToString(raw[:20])
}

// AddReplica registers addr as a connected replica. Only valid on a
// primary; callers must already hold the shared state lock.
func (s *State) AddReplica(addr string) error {
	if s.Role != RoleMaster {
		return fmt.Errorf("replication: AddReplica called on a %s", s.Role)
	}
	s.replicas = append(s.replicas, addr)
	return nil
}

// Replicas returns the current list of registered replica addresses.
func (s *State) Replicas() []string {
	out := make([]string, len(s.replicas))
	copy(out, s.replicas)
	return out
}

// Info renders the "replication" INFO section in the exact field
// order the wire protocol expects.
func (s *State) Info() string {
	var b strings.Builder
	b.WriteString("# Replication\n")
	fmt.Fprintf(&b, "role:%s\n", s.Role)
	fmt.Fprintf(&b, "connected_slaves:%d\n", len(s.replicas))
	fmt.Fprintf(&b, "master_repl_offset:%d\n", s.Offset)
	fmt.Fprintf(&b, "master_replid:%s\n", s.ReplID)
	fmt.Fprintf(&b, "second_repl_offset:%d\n", 0)
	fmt.Fprintf(&b, "repl_backlog_active:%d\n", 0)
	fmt.Fprintf(&b, "repl_backlog_size:%d\n", 0)
	fmt.Fprintf(&b, "repl_backlog_first_byte_offset:%d\n", 0)
	fmt.Fprintf(&b, "repl_backlog_histlen:%d\n", 0)
	return b.String()
}
