package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DefaultMessageID identifies a write-log message at the collector.
	DefaultMessageID uint16 = 1
	// lengthEscape in the two-byte length field announces a four-byte length.
	lengthEscape = 0xFFFF
	// MaxBodySize bounds a single unit accepted by ParseFrame.
	MaxBodySize = 16 << 20
)

// ErrIncomplete is returned by ParseFrame when more bytes are needed.
var ErrIncomplete = errors.New("codec: incomplete frame")

// Unit is one framed record waiting in the outbound queue.
type Unit struct {
	MsgID uint16
	Body  []byte
}

// NewUnit encodes r into a fresh unit.
func NewUnit(msgID uint16, r *Record) *Unit {
	return &Unit{
		MsgID: msgID,
		Body:  AppendBody(make([]byte, 0, r.BodySize()), r),
	}
}

// HeaderSize returns the framing overhead for the unit body.
func (u *Unit) HeaderSize() int {
	if len(u.Body) >= lengthEscape {
		return 2 + 2 + 4
	}
	return 2 + 2
}

// AppendFrame appends the framed unit (message id, length, body) to dst.
func (u *Unit) AppendFrame(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, u.MsgID)
	if len(u.Body) >= lengthEscape {
		dst = binary.LittleEndian.AppendUint16(dst, lengthEscape)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(u.Body)))
	} else {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(u.Body)))
	}
	return append(dst, u.Body...)
}

// Frame returns the framed unit in a newly allocated slice.
func (u *Unit) Frame() []byte {
	return u.AppendFrame(make([]byte, 0, u.HeaderSize()+len(u.Body)))
}

// Record decodes the unit body.
func (u *Unit) Record() (Record, error) {
	return DecodeBody(u.Body)
}

// ParseFrame reads one framed unit from the front of b and returns it along
// with the number of bytes consumed. The unit body aliases b.
// ErrIncomplete means b holds a valid prefix and more input is required.
func ParseFrame(b []byte) (Unit, int, error) {
	if len(b) < 4 {
		return Unit{}, 0, ErrIncomplete
	}

	le := binary.LittleEndian
	msgID := le.Uint16(b[0:])
	size := int(le.Uint16(b[2:]))
	offset := 4
	if size == lengthEscape {
		if len(b) < 8 {
			return Unit{}, 0, ErrIncomplete
		}
		ext := le.Uint32(b[4:])
		if ext > MaxBodySize {
			return Unit{}, 0, fmt.Errorf("codec: frame body of %d bytes exceeds limit %d", ext, MaxBodySize)
		}
		size = int(ext)
		offset = 8
	}

	if len(b) < offset+size {
		return Unit{}, 0, ErrIncomplete
	}
	return Unit{MsgID: msgID, Body: b[offset : offset+size]}, offset + size, nil
}

// ParseFrames decodes every complete frame in b and returns the units and
// the number of bytes consumed. Trailing partial input is left unconsumed.
func ParseFrames(b []byte) ([]Unit, int, error) {
	var units []Unit
	consumed := 0
	for consumed < len(b) {
		u, n, err := ParseFrame(b[consumed:])
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return units, consumed, err
		}
		units = append(units, u)
		consumed += n
	}
	return units, consumed, nil
}
