// Package helpers holds small cross-cutting utilities that don't
// belong to any single domain package, mirroring the teacher's
// libs/go/helpers role as a grab-bag for stage constants and response
// shaping helpers.
package helpers

import (
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// EncodeID renders a signed 64-bit id as a base-62 string for the wire,
// per the encoding rule in the external-interfaces section of the spec.
func EncodeID(id int64) string {
	if id == 0 {
		return string(base62Alphabet[0])
	}
	negative := id < 0
	n := uint64(id)
	if negative {
		n = uint64(-id)
	}
	var b []byte
	for n > 0 {
		b = append([]byte{base62Alphabet[n%62]}, b...)
		n /= 62
	}
	if negative {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// DecodeID parses a base-62 wire id back into a signed 64-bit integer.
// It returns ok=false if s contains characters outside the alphabet.
func DecodeID(s string) (id int64, ok bool) {
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	var n int64
	for _, c := range s {
		idx := strings.IndexRune(base62Alphabet, c)
		if idx < 0 {
			return 0, false
		}
		n = n*62 + int64(idx)
	}
	if negative {
		n = -n
	}
	return n, true
}
