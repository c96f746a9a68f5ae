package logfwd

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// spewConfig renders composite values compactly for a single log line
var spewConfig = &spew.ConfigState{
	Indent:                  " ",
	MaxDepth:                10,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// appendArgs formats args as space-separated values
func appendArgs(dst []byte, args []any) []byte {
	for i, arg := range args {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = appendValue(dst, arg)
	}
	return dst
}

// appendKeyValues formats alternating key/value args as key=value pairs
func appendKeyValues(dst []byte, args []any) []byte {
	for i := 0; i < len(args); i += 2 {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = appendValue(dst, args[i])
		if i+1 < len(args) {
			dst = append(dst, '=')
			dst = appendValue(dst, args[i+1])
		}
	}
	return dst
}

// appendValue converts any value to its string representation.
// Types that are not explicitly handled fall back to spew.
func appendValue(dst []byte, v any) []byte {
	switch val := v.(type) {
	case string:
		return append(dst, val...)
	case []byte:
		return append(dst, val...)
	case int:
		return strconv.AppendInt(dst, int64(val), 10)
	case int32:
		return strconv.AppendInt(dst, int64(val), 10)
	case int64:
		return strconv.AppendInt(dst, val, 10)
	case uint:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint32:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint64:
		return strconv.AppendUint(dst, val, 10)
	case float32:
		return strconv.AppendFloat(dst, float64(val), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(dst, val, 'f', -1, 64)
	case bool:
		return strconv.AppendBool(dst, val)
	case nil:
		return append(dst, "nil"...)
	case time.Time:
		return val.AppendFormat(dst, timestampFormat)
	case time.Duration:
		return append(dst, val.String()...)
	case error:
		return append(dst, val.Error()...)
	case fmt.Stringer:
		return append(dst, val.String()...)
	default:
		var b bytes.Buffer
		spewConfig.Fdump(&b, val)
		// Trim trailing new line added by spew
		return append(dst, bytes.TrimSpace(b.Bytes())...)
	}
}
