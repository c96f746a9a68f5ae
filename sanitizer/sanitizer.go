// Package sanitizer cleans record payloads received from remote components before they
// are written to a terminal or a text file, using composable filter and transform rules.
package sanitizer

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Filter flags for character matching
const (
	FilterNonPrintable uint64 = 1 << iota // Runes not printable per strconv.IsPrint
	FilterControl                         // Control characters (unicode.IsControl)
	FilterLineBreak                       // '\n' and '\r'
	FilterInvalid                         // Bytes that are not valid UTF-8
)

// Transform flags for character transformation
const (
	TransformStrip     uint64 = 1 << iota // Removes the character
	TransformHexEncode                    // Encodes the character's bytes as "<XXYY>"
	TransformEscape                       // Backslash escape ('\n', '\x07')
)

// PolicyPreset names a pre-configured rule set
type PolicyPreset string

const (
	PolicyRaw    PolicyPreset = "raw"    // Passthrough
	PolicyTxt    PolicyPreset = "txt"    // Hex-encode anything a terminal would interpret
	PolicyEscape PolicyPreset = "escape" // One record per line with escaped control characters
	PolicyStrip  PolicyPreset = "strip"  // Drop control characters
)

type rule struct {
	filter    uint64
	transform uint64
}

var policyRules = map[PolicyPreset][]rule{
	PolicyRaw: {},
	PolicyTxt: {
		{filter: FilterInvalid, transform: TransformHexEncode},
		{filter: FilterNonPrintable, transform: TransformHexEncode},
	},
	PolicyEscape: {
		{filter: FilterInvalid, transform: TransformHexEncode},
		{filter: FilterControl | FilterLineBreak, transform: TransformEscape},
	},
	PolicyStrip: {
		{filter: FilterInvalid | FilterControl, transform: TransformStrip},
	},
}

// filterOrder fixes the order filters are tested in
var filterOrder = []struct {
	flag  uint64
	check func(rune) bool
}{
	{FilterNonPrintable, func(r rune) bool { return !strconv.IsPrint(r) }},
	{FilterControl, unicode.IsControl},
	{FilterLineBreak, func(r rune) bool { return r == '\n' || r == '\r' }},
}

// ParsePolicy converts a preset name to a PolicyPreset
func ParsePolicy(name string) (PolicyPreset, error) {
	p := PolicyPreset(name)
	if _, ok := policyRules[p]; !ok {
		return "", fmt.Errorf("sanitizer: unknown policy '%s' (use raw, txt, escape, or strip)", name)
	}
	return p, nil
}

// Sanitizer applies rules to payload bytes. It is safe for concurrent use.
type Sanitizer struct {
	rules []rule
}

// New creates a Sanitizer with no rules
func New() *Sanitizer {
	return &Sanitizer{}
}

// Rule appends a custom rule; the earliest matching rule applies
func (s *Sanitizer) Rule(filter uint64, transform uint64) *Sanitizer {
	s.rules = append(s.rules, rule{filter: filter, transform: transform})
	return s
}

// Policy appends the rules of a preset
func (s *Sanitizer) Policy(preset PolicyPreset) *Sanitizer {
	if rules, ok := policyRules[preset]; ok {
		s.rules = append(s.rules, rules...)
	}
	return s
}

// Append appends the sanitized form of src to dst
func (s *Sanitizer) Append(dst, src []byte) []byte {
	if len(s.rules) == 0 {
		return append(dst, src...)
	}

	for i := 0; i < len(src); {
		r, size := utf8.DecodeRune(src[i:])
		raw := src[i : i+size]
		i += size

		var transform uint64
		matched := false
		for _, rl := range s.rules {
			if matches(r, size, rl.filter) {
				transform, matched = rl.transform, true
				break
			}
		}
		if !matched {
			dst = append(dst, raw...)
			continue
		}
		dst = apply(dst, r, raw, transform)
	}
	return dst
}

// Sanitize returns the sanitized form of data
func (s *Sanitizer) Sanitize(data string) string {
	return string(s.Append(make([]byte, 0, len(data)), []byte(data)))
}

func matches(r rune, size int, mask uint64) bool {
	if r == utf8.RuneError && size <= 1 {
		return mask&FilterInvalid != 0
	}
	for _, f := range filterOrder {
		if mask&f.flag != 0 && f.check(r) {
			return true
		}
	}
	return false
}

func apply(dst []byte, r rune, raw []byte, transform uint64) []byte {
	switch {
	case transform&TransformStrip != 0:
		return dst

	case transform&TransformHexEncode != 0:
		dst = append(dst, '<')
		dst = hex.AppendEncode(dst, raw)
		return append(dst, '>')

	case transform&TransformEscape != 0:
		switch r {
		case '\n':
			return append(dst, '\\', 'n')
		case '\r':
			return append(dst, '\\', 'r')
		case '\t':
			return append(dst, '\\', 't')
		case '\\':
			return append(dst, '\\', '\\')
		}
		if r < utf8.RuneSelf {
			return fmt.Appendf(dst, "\\x%02x", r)
		}
		return fmt.Appendf(dst, "\\u%04x", r)
	}
	return append(dst, raw...)
}
