// Package snapshot holds the fixed payload sent as the File frame
// during a full resync. Real snapshot encoding is out of scope; this
// is the well-known empty-RDB byte sequence, hard-coded verbatim.
package snapshot

import "encoding/hex"

const emptyHex = "524544495330303131fa0972656469732d76657205372e322e30fa0a72656469732d62697473c040fa056374696d65c26d08bc65fa08757365642d6d656dc2b0c41000fa08616f662d62617365c000fff06e3bfec0ff5aa2"

// Empty is the fixed 88-byte empty-store snapshot payload.
var Empty = mustDecode(emptyHex)

func mustDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
