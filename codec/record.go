// Package codec implements the binary form of forwarded log records and the
// framing that turns one encoded record into a transmission unit.
//
// All integers are little-endian. A record body is laid out as:
//
//	int32  uid
//	uint32 severity
//	int32  component kind
//	uint64 component id
//	int32  component global order
//	int32  component group order
//	int64  timestamp seconds
//	uint32 timestamp milliseconds
//	uint32 payload length, payload bytes
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// fixedBodySize is the size of every body field preceding the payload bytes.
const fixedBodySize = 4 + 4 + 4 + 8 + 4 + 4 + 8 + 4 + 4

// MaxPayloadSize is the largest payload whose encoded body still fits in MaxBodySize.
const MaxPayloadSize = MaxBodySize - fixedBodySize

var (
	// ErrShortBody is returned when a body ends before all fixed fields are read.
	ErrShortBody = errors.New("codec: record body truncated")
	// ErrEmptyPayload is returned when a record carries no message bytes.
	ErrEmptyPayload = errors.New("codec: record payload is empty")
)

// Record is one log record with the identity of the component that produced it.
type Record struct {
	UID           int32
	Severity      Severity
	ComponentKind int32
	ComponentID   uint64
	GlobalOrder   int32
	GroupOrder    int32
	Seconds       int64
	Millis        uint32
	Payload       []byte
}

// Stamp sets the record timestamp from t, truncated to milliseconds.
func (r *Record) Stamp(t time.Time) {
	r.Seconds = t.Unix()
	r.Millis = uint32(t.Nanosecond() / int(time.Millisecond))
}

// Time returns the record timestamp in the local zone.
func (r *Record) Time() time.Time {
	return time.Unix(r.Seconds, int64(r.Millis)*int64(time.Millisecond))
}

// BodySize returns the encoded size of the record body.
func (r *Record) BodySize() int {
	return fixedBodySize + len(r.Payload)
}

// AppendBody appends the encoded record body to dst and returns the extended slice.
func AppendBody(dst []byte, r *Record) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.UID))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.Severity))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.ComponentKind))
	dst = binary.LittleEndian.AppendUint64(dst, r.ComponentID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.GlobalOrder))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.GroupOrder))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(r.Seconds))
	dst = binary.LittleEndian.AppendUint32(dst, r.Millis)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.Payload)))
	return append(dst, r.Payload...)
}

// DecodeBody parses a record body produced by AppendBody.
// The returned payload aliases body.
func DecodeBody(body []byte) (Record, error) {
	var r Record
	if len(body) < fixedBodySize {
		return r, ErrShortBody
	}

	le := binary.LittleEndian
	r.UID = int32(le.Uint32(body[0:]))
	r.Severity = Severity(le.Uint32(body[4:]))
	r.ComponentKind = int32(le.Uint32(body[8:]))
	r.ComponentID = le.Uint64(body[12:])
	r.GlobalOrder = int32(le.Uint32(body[20:]))
	r.GroupOrder = int32(le.Uint32(body[24:]))
	r.Seconds = int64(le.Uint64(body[28:]))
	r.Millis = le.Uint32(body[36:])
	n := le.Uint32(body[40:])

	rest := body[fixedBodySize:]
	if uint64(n) > uint64(len(rest)) {
		return r, fmt.Errorf("codec: payload length %d exceeds remaining %d bytes: %w", n, len(rest), ErrShortBody)
	}
	if n == 0 {
		return r, ErrEmptyPayload
	}
	r.Payload = rest[:n]
	return r, nil
}
