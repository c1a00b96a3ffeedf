// Package handler parses a RESP frame into a typed command and applies
// it against the shared store, replication state, and connection
// registry.
package handler

import (
	"fmt"
	"strconv"
	"strings"

	"redisk/internal/protocol"
)

// Kind identifies which command a Command value holds.
type Kind int

const (
	KindPing Kind = iota
	KindEcho
	KindCommand
	KindGet
	KindSet
	KindInfo
	KindReplConf
	KindPSync
	KindUnknown
)

// ExpiryUnit distinguishes SET's EX (seconds) and PX (milliseconds)
// options.
type ExpiryUnit int

const (
	ExpiryNone ExpiryUnit = iota
	ExpirySeconds
	ExpiryMillis
)

// Command is the parsed, typed form of a client's request.
type Command struct {
	Kind Kind

	// ECHO
	EchoArg []byte

	// GET / SET key
	Key string

	// SET
	Value      []byte
	ExpiryUnit ExpiryUnit
	ExpiryN    int64

	// INFO [section]
	Section string

	// REPLCONF option args...
	ReplConfOption string
	ReplConfArgs   []string

	// PSYNC replid offset
	PSyncReplID string
	PSyncOffset string

	// raw name, used for the Unknown case's error text
	Name string
}

// Parse decodes f (expected to be an Array of Bulk frames, the first
// naming the command) into a typed Command. Argument-count or shape
// problems are reported as an error the caller turns into an -ERR
// reply; the connection stays open either way.
func Parse(f protocol.Frame) (*Command, error) {
	if f.Kind != protocol.KindArray || len(f.Items) == 0 {
		return nil, fmt.Errorf("ERR: expected a non-empty array")
	}
	args := make([]string, 0, len(f.Items))
	for _, item := range f.Items {
		if item.Kind != protocol.KindBulk || item.Data == nil {
			return nil, fmt.Errorf("ERR: expected bulk string arguments")
		}
		args = append(args, string(item.Data))
	}

	name := strings.ToUpper(args[0])
	rest := args[1:]

	switch name {
	case "PING":
		return &Command{Kind: KindPing}, nil

	case "ECHO":
		if len(rest) != 1 {
			return nil, fmt.Errorf("ERR: wrong number of arguments for 'echo'")
		}
		return &Command{Kind: KindEcho, EchoArg: []byte(rest[0])}, nil

	case "COMMAND":
		return &Command{Kind: KindCommand}, nil

	case "GET":
		if len(rest) != 1 {
			return nil, fmt.Errorf("ERR: wrong number of arguments for 'get'")
		}
		return &Command{Kind: KindGet, Key: rest[0]}, nil

	case "SET":
		return parseSet(rest)

	case "INFO":
		section := ""
		if len(rest) > 0 {
			section = strings.ToLower(rest[0])
		}
		return &Command{Kind: KindInfo, Section: section}, nil

	case "REPLCONF":
		if len(rest) < 1 {
			return nil, fmt.Errorf("ERR: wrong number of arguments for 'replconf'")
		}
		return &Command{
			Kind:           KindReplConf,
			ReplConfOption: strings.ToLower(rest[0]),
			ReplConfArgs:   rest[1:],
		}, nil

	case "PSYNC":
		if len(rest) != 2 {
			return nil, fmt.Errorf("ERR: wrong number of arguments for 'psync'")
		}
		return &Command{Kind: KindPSync, PSyncReplID: rest[0], PSyncOffset: rest[1]}, nil

	default:
		return &Command{Kind: KindUnknown, Name: args[0]}, nil
	}
}

func parseSet(rest []string) (*Command, error) {
	if len(rest) != 2 && len(rest) != 4 {
		return nil, fmt.Errorf("ERR: wrong number of arguments for 'set'")
	}
	cmd := &Command{
		Kind:  KindSet,
		Key:   rest[0],
		Value: []byte(rest[1]),
	}
	if len(rest) == 4 {
		unit := strings.ToUpper(rest[2])
		n, err := strconv.ParseInt(rest[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ERR: value is not an integer or out of range")
		}
		switch unit {
		case "EX":
			cmd.ExpiryUnit = ExpirySeconds
			cmd.ExpiryN = n
		case "PX":
			cmd.ExpiryUnit = ExpiryMillis
			cmd.ExpiryN = n
		default:
			return nil, fmt.Errorf("ERR: syntax error")
		}
	}
	return cmd, nil
}
