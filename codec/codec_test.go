package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(payload string) Record {
	return Record{
		UID:           -7,
		Severity:      SeverityWarning,
		ComponentKind: 6,
		ComponentID:   0xDEADBEEFCAFE,
		GlobalOrder:   3,
		GroupOrder:    2,
		Seconds:       1700000000,
		Millis:        457,
		Payload:       []byte(payload),
	}
}

// TestBodyRoundtrip verifies every fixed field survives encode and decode
func TestBodyRoundtrip(t *testing.T) {
	rec := sampleRecord("entity created")

	body := AppendBody(nil, &rec)
	assert.Equal(t, rec.BodySize(), len(body))

	decoded, err := DecodeBody(body)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

// TestDecodeBodyErrors covers truncated and empty bodies
func TestDecodeBodyErrors(t *testing.T) {
	rec := sampleRecord("abc")
	body := AppendBody(nil, &rec)

	_, err := DecodeBody(body[:10])
	assert.ErrorIs(t, err, ErrShortBody)

	_, err = DecodeBody(body[:len(body)-1])
	assert.ErrorIs(t, err, ErrShortBody)

	empty := sampleRecord("")
	_, err = DecodeBody(AppendBody(nil, &empty))
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

// TestStampMillis checks millisecond truncation of timestamps
func TestStampMillis(t *testing.T) {
	var rec Record
	ts := time.Date(2024, 3, 9, 10, 11, 12, 987654321, time.UTC)
	rec.Stamp(ts)

	assert.Equal(t, ts.Unix(), rec.Seconds)
	assert.Equal(t, uint32(987), rec.Millis)
	assert.True(t, rec.Time().Equal(ts.Truncate(time.Millisecond)))
}

// TestFrameShortLength verifies the two-byte length form
func TestFrameShortLength(t *testing.T) {
	rec := sampleRecord("short")
	u := NewUnit(DefaultMessageID, &rec)

	frame := u.Frame()
	assert.Equal(t, 4+len(u.Body), len(frame))

	parsed, n, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, DefaultMessageID, parsed.MsgID)
	assert.True(t, bytes.Equal(u.Body, parsed.Body))
}

// TestFrameExtendedLength verifies the escape value switches to a four-byte length
func TestFrameExtendedLength(t *testing.T) {
	rec := sampleRecord(string(bytes.Repeat([]byte{'x'}, 70000)))
	u := NewUnit(42, &rec)

	frame := u.Frame()
	require.Equal(t, 8+len(u.Body), len(frame))
	assert.Equal(t, []byte{0xFF, 0xFF}, frame[2:4])

	parsed, n, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, uint16(42), parsed.MsgID)

	got, err := parsed.Record()
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, got.Payload)
}

// TestParseFramesStream splits a byte stream holding several frames and a partial tail
func TestParseFramesStream(t *testing.T) {
	var stream []byte
	for _, msg := range []string{"one", "two", "three"} {
		rec := sampleRecord(msg)
		stream = NewUnit(DefaultMessageID, &rec).AppendFrame(stream)
	}
	full := len(stream)

	rec := sampleRecord("partial")
	tail := NewUnit(DefaultMessageID, &rec).Frame()
	stream = append(stream, tail[:len(tail)-3]...)

	units, consumed, err := ParseFrames(stream)
	require.NoError(t, err)
	assert.Equal(t, full, consumed)
	require.Len(t, units, 3)

	for i, want := range []string{"one", "two", "three"} {
		got, err := units[i].Record()
		require.NoError(t, err)
		assert.Equal(t, want, string(got.Payload))
	}

	_, _, err = ParseFrame(stream[:2])
	assert.ErrorIs(t, err, ErrIncomplete)
}

// TestParseSeverity checks names and aliases
func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"info", SeverityInfo},
		{"WARN", SeverityWarning},
		{"warning", SeverityWarning},
		{"fatal", SeverityCritical},
		{"s_error", SeverityScriptError},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSeverity("loud")
	assert.Error(t, err)

	assert.True(t, SeverityScriptNormal.IsScript())
	assert.False(t, SeverityError.IsScript())
	assert.Equal(t, "SEVERITY(0x800)", Severity(0x800).String())
}
