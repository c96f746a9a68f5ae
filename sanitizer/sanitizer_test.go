package sanitizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicies(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		policy   PolicyPreset
		expected string
	}{
		{"raw passes through", "hello\x00world\n", PolicyRaw, "hello\x00world\n"},

		{"txt null byte", "test\x00data", PolicyTxt, "test<00>data"},
		{"txt control chars", "bell\x07tab\x09form\x0c", PolicyTxt, "bell<07>tab<09>form<0c>"},
		{"txt terminal escape", "\x1b[31mred", PolicyTxt, "<1b>[31mred"},
		{"txt preserves printable", "Hello World 123!@#", PolicyTxt, "Hello World 123!@#"},
		{"txt multi-byte control", "line1\u0085line2", PolicyTxt, "line1<c285>line2"},
		{"txt preserves UTF-8", "Hello 世界 ✓", PolicyTxt, "Hello 世界 ✓"},
		{"txt invalid UTF-8", "bad\xffbyte", PolicyTxt, "bad<ff>byte"},

		{"escape line breaks", "line1\nline2\ttab\rreturn", PolicyEscape, "line1\\nline2\\ttab\\rreturn"},
		{"escape other control", "a\x07b", PolicyEscape, "a\\x07b"},
		{"escape keeps backslash", "c:\\path", PolicyEscape, "c:\\path"},

		{"strip control", "clean\x00\x07\ntxt", PolicyStrip, "cleantxt"},
		{"strip preserves spaces", "hello world", PolicyStrip, "hello world"},
		{"strip invalid", "a\xfeb", PolicyStrip, "ab"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New().Policy(tc.policy)
			assert.Equal(t, tc.expected, s.Sanitize(tc.input))
		})
	}
}

func TestAppendReusesBuffer(t *testing.T) {
	s := New().Policy(PolicyTxt)
	dst := []byte("prefix:")
	dst = s.Append(dst, []byte("a\x00b"))
	assert.Equal(t, "prefix:a<00>b", string(dst))
}

func TestCustomRuleOrder(t *testing.T) {
	// First matching rule wins
	s := New().
		Rule(FilterLineBreak, TransformStrip).
		Rule(FilterControl, TransformHexEncode)
	assert.Equal(t, "ab<09>c", s.Sanitize("a\nb\tc"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("txt")
	require.NoError(t, err)
	assert.Equal(t, PolicyTxt, p)

	_, err = ParsePolicy("shell")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown policy"))
}

func BenchmarkSanitizeTxt(b *testing.B) {
	s := New().Policy(PolicyTxt)
	src := []byte(strings.Repeat("payload with \x1b escape ", 16))
	buf := make([]byte, 0, 1024)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf = s.Append(buf[:0], src)
	}
}
