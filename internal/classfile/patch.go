package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/standardbeagle/redefine/internal/types"
)

// Patch rewrites the Utf8 constants of b according to rules. A constant equal
// to a rule key is replaced outright (this covers bare names and the derived
// reference and constructor forms). Otherwise, a constant that is a
// well-formed field or method descriptor has each class reference renamed
// through the bare-name rules in a single pass.
//
// Only the constant pool is re-encoded; every index stays valid, so the rest
// of the file is copied verbatim. b is never modified.
func Patch(b []byte, rules map[string]string) ([]byte, error) {
	f, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return append([]byte(nil), b...), nil
	}

	rename := func(name string) (string, bool) {
		n, ok := rules[name]
		return n, ok
	}

	var out bytes.Buffer
	out.Grow(len(b))
	out.Write(b[:10]) // magic, versions, pool count
	for i := 1; i < len(f.Constants); i++ {
		c := f.Constants[i]
		if c.Tag == 0 {
			continue
		}
		if c.Tag != TagUtf8 {
			out.Write(c.raw)
			continue
		}
		value := string(c.Utf8)
		if replaced, ok := rules[value]; ok {
			value = replaced
		} else if rewritten, ok := types.RewriteDescriptor(value, rename); ok {
			value = rewritten
		}
		if value == string(c.Utf8) {
			out.Write(c.raw)
			continue
		}
		if len(value) > 0xFFFF {
			return nil, fmt.Errorf("constant %d: %w", i, ErrTooLong)
		}
		var hdr [3]byte
		hdr[0] = TagUtf8
		binary.BigEndian.PutUint16(hdr[1:], uint16(len(value)))
		out.Write(hdr[:])
		out.WriteString(value)
	}
	out.Write(b[f.poolEnd:])
	return out.Bytes(), nil
}
