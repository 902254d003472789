package types

import "strings"

// RewriteDescriptor rewrites every class reference (L<name>;) inside a field
// or method descriptor through rename. All references are rewritten in a
// single pass, so chained renames (A->B, B->C) never compose.
//
// The second return value is false when desc is not a well-formed
// descriptor; desc is then returned unchanged.
func RewriteDescriptor(desc string, rename func(string) (string, bool)) (string, bool) {
	if desc == "" {
		return desc, false
	}

	var b strings.Builder
	changed := false
	i := 0
	if desc[0] == '(' {
		b.WriteByte('(')
		i = 1
		for i < len(desc) && desc[i] != ')' {
			next, ok := rewriteFieldType(desc, i, &b, rename, &changed)
			if !ok {
				return desc, false
			}
			i = next
		}
		if i >= len(desc) {
			return desc, false
		}
		b.WriteByte(')')
		i++
		if i < len(desc) && desc[i] == 'V' {
			b.WriteByte('V')
			i++
		} else {
			next, ok := rewriteFieldType(desc, i, &b, rename, &changed)
			if !ok {
				return desc, false
			}
			i = next
		}
	} else {
		next, ok := rewriteFieldType(desc, i, &b, rename, &changed)
		if !ok {
			return desc, false
		}
		i = next
	}

	if i != len(desc) {
		return desc, false
	}
	if !changed {
		return desc, true
	}
	return b.String(), true
}

func rewriteFieldType(desc string, i int, b *strings.Builder, rename func(string) (string, bool), changed *bool) (int, bool) {
	for i < len(desc) && desc[i] == '[' {
		b.WriteByte('[')
		i++
	}
	if i >= len(desc) {
		return i, false
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		b.WriteByte(desc[i])
		return i + 1, true
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return i, false
		}
		name := desc[i+1 : i+end]
		if strings.ContainsAny(name, "();[") {
			return i, false
		}
		if renamed, ok := rename(name); ok && renamed != name {
			name = renamed
			*changed = true
		}
		b.WriteByte('L')
		b.WriteString(name)
		b.WriteByte(';')
		return i + end + 1, true
	default:
		return i, false
	}
}
