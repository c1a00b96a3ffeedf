package protocol

import (
	"fmt"
	"strings"
)

// Kind tags the variant a Frame holds.
type Kind int

const (
	KindSimple Kind = iota
	KindError
	KindInteger
	KindBulk
	KindArray
	KindFile
)

// Frame is the tagged RESP value the codec produces and consumes.
//
// For KindBulk, a nil Data means the null bulk string ($-1\r\n); a
// non-nil, possibly empty, slice means present. KindFile carries its
// payload the same way Data is used for Bulk, but is written and read
// without a trailing CRLF — it only ever appears as the standalone
// snapshot frame during a full resync.
type Frame struct {
	Kind  Kind
	Str   string // Simple / Error
	Int   int64
	Data  []byte
	Items []Frame // Array
}

func Simple(s string) Frame { return Frame{Kind: KindSimple, Str: s} }
func Err(s string) Frame    { return Frame{Kind: KindError, Str: s} }
func Integer(i int64) Frame { return Frame{Kind: KindInteger, Int: i} }
func Bulk(b []byte) Frame   { return Frame{Kind: KindBulk, Data: b} }
func BulkString(s string) Frame {
	return Frame{Kind: KindBulk, Data: []byte(s)}
}
func NullBulk() Frame { return Frame{Kind: KindBulk, Data: nil} }
func Array(items ...Frame) Frame {
	return Frame{Kind: KindArray, Items: items}
}
func File(b []byte) Frame { return Frame{Kind: KindFile, Data: b} }

// IsNilBulk reports whether f is the null bulk string.
func (f Frame) IsNilBulk() bool { return f.Kind == KindBulk && f.Data == nil }

func (f Frame) String() string {
	switch f.Kind {
	case KindSimple:
		return "+" + f.Str
	case KindError:
		return "-" + f.Str
	case KindInteger:
		return fmt.Sprintf(":%d", f.Int)
	case KindBulk:
		if f.Data == nil {
			return "$-1"
		}
		return fmt.Sprintf("$%q", f.Data)
	case KindArray:
		return fmt.Sprintf("*%d", len(f.Items))
	case KindFile:
		return fmt.Sprintf("file(%d bytes)", len(f.Data))
	default:
		return "?"
	}
}

// Check reports whether c's buffer holds a complete frame without
// consuming anything the caller can't yet commit to. When expectFile is
// true, a top-level '$'-prefixed frame is checked as a File (no
// trailing CRLF after the payload) instead of a Bulk string.
func Check(c *Cursor, expectFile bool) error {
	b, err := c.peek()
	if err != nil {
		return err
	}
	switch b {
	case '+', '-', ':':
		c.pos++
		_, err := c.line()
		return err
	case '$':
		c.pos++
		return checkBulk(c, expectFile)
	case '*':
		c.pos++
		return checkArray(c)
	default:
		return checkInline(c)
	}
}

func checkBulk(c *Cursor, expectFile bool) error {
	lenLine, err := c.line()
	if err != nil {
		return err
	}
	n, err := decimal(lenLine)
	if err != nil {
		return err
	}
	if n == -1 {
		if expectFile {
			return protoErrf("protocol error; file frame cannot be null")
		}
		return nil
	}
	if n < 0 {
		return protoErrf("protocol error; invalid bulk length %d", n)
	}
	if err := c.skip(int(n)); err != nil {
		return err
	}
	if expectFile {
		return nil
	}
	return c.skip(2)
}

func checkArray(c *Cursor) error {
	lenLine, err := c.line()
	if err != nil {
		return err
	}
	n, err := decimal(lenLine)
	if err != nil {
		return err
	}
	if n < 0 {
		return protoErrf("protocol error; invalid array length %d", n)
	}
	for i := int64(0); i < n; i++ {
		if err := Check(c, false); err != nil {
			return err
		}
	}
	return nil
}

func checkInline(c *Cursor) error {
	_, err := c.line()
	return err
}

// Parse decodes one frame from c. Call Check first (or be prepared to
// retry on ErrIncomplete); Parse assumes a complete frame is present but
// will still return ErrIncomplete if it isn't.
func Parse(c *Cursor, expectFile bool) (Frame, error) {
	b, err := c.peek()
	if err != nil {
		return Frame{}, err
	}
	switch b {
	case '+':
		c.pos++
		line, err := c.line()
		if err != nil {
			return Frame{}, err
		}
		return Simple(string(line)), nil
	case '-':
		c.pos++
		line, err := c.line()
		if err != nil {
			return Frame{}, err
		}
		return Err(string(line)), nil
	case ':':
		c.pos++
		line, err := c.line()
		if err != nil {
			return Frame{}, err
		}
		n, err := decimal(line)
		if err != nil {
			return Frame{}, err
		}
		return Integer(n), nil
	case '$':
		c.pos++
		return parseBulk(c, expectFile)
	case '*':
		c.pos++
		return parseArray(c)
	default:
		return parseInline(c)
	}
}

func parseBulk(c *Cursor, expectFile bool) (Frame, error) {
	lenLine, err := c.line()
	if err != nil {
		return Frame{}, err
	}
	n, err := decimal(lenLine)
	if err != nil {
		return Frame{}, err
	}
	if n == -1 {
		if expectFile {
			return Frame{}, protoErrf("protocol error; file frame cannot be null")
		}
		return NullBulk(), nil
	}
	if n < 0 {
		return Frame{}, protoErrf("protocol error; invalid bulk length %d", n)
	}
	if c.remaining() < int(n) {
		return Frame{}, ErrIncomplete
	}
	data := make([]byte, n)
	copy(data, c.buf[c.pos:c.pos+int(n)])
	c.pos += int(n)
	if expectFile {
		return File(data), nil
	}
	if err := c.skip(2); err != nil {
		return Frame{}, err
	}
	return Bulk(data), nil
}

func parseArray(c *Cursor) (Frame, error) {
	lenLine, err := c.line()
	if err != nil {
		return Frame{}, err
	}
	n, err := decimal(lenLine)
	if err != nil {
		return Frame{}, err
	}
	if n < 0 {
		return Frame{}, protoErrf("protocol error; invalid array length %d", n)
	}
	// An empty array keeps Items nil, the same as Array() builds it.
	var items []Frame
	if n > 0 {
		items = make([]Frame, 0, n)
	}
	for i := int64(0); i < n; i++ {
		item, err := Parse(c, false)
		if err != nil {
			return Frame{}, err
		}
		items = append(items, item)
	}
	return Frame{Kind: KindArray, Items: items}, nil
}

// parseInline handles whitespace-separated ad-hoc commands: everything
// up to CRLF, split into Bulk frames the same way a real command array
// would be, so the command layer never needs to know the difference.
func parseInline(c *Cursor) (Frame, error) {
	line, err := c.line()
	if err != nil {
		return Frame{}, err
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return Frame{}, protoErrf("protocol error; empty inline command")
	}
	items := make([]Frame, 0, len(fields))
	for _, f := range fields {
		items = append(items, BulkString(f))
	}
	return Frame{Kind: KindArray, Items: items}, nil
}

// Encode writes f in its wire form.
func (f Frame) Encode() []byte {
	switch f.Kind {
	case KindSimple:
		return []byte("+" + f.Str + "\r\n")
	case KindError:
		return []byte("-" + f.Str + "\r\n")
	case KindInteger:
		return []byte(fmt.Sprintf(":%d\r\n", f.Int))
	case KindBulk:
		if f.Data == nil {
			return []byte("$-1\r\n")
		}
		buf := make([]byte, 0, len(f.Data)+16)
		buf = append(buf, []byte(fmt.Sprintf("$%d\r\n", len(f.Data)))...)
		buf = append(buf, f.Data...)
		buf = append(buf, '\r', '\n')
		return buf
	case KindArray:
		buf := []byte(fmt.Sprintf("*%d\r\n", len(f.Items)))
		for _, item := range f.Items {
			buf = append(buf, item.Encode()...)
		}
		return buf
	case KindFile:
		buf := make([]byte, 0, len(f.Data)+16)
		buf = append(buf, []byte(fmt.Sprintf("$%d\r\n", len(f.Data)))...)
		buf = append(buf, f.Data...)
		return buf
	default:
		return nil
	}
}
