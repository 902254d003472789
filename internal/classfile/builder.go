package classfile

import (
	"bytes"
	"encoding/binary"
)

// Access flags used by Builder.
const (
	AccPublic = 0x0001
	AccSuper  = 0x0020
)

// Builder assembles minimal, well-formed class files. Method bodies are
// omitted; everything the reader and patcher look at is present.
type Builder struct {
	name       string
	super      string
	interfaces []string
	fields     [][2]string
	methods    [][2]string
	enclosing  *[3]string
	nested     []string
	refs       []string
	literals   []string
	longs      []int64

	pool   bytes.Buffer
	count  uint16
	utf8s  map[string]uint16
	class  map[string]uint16
	nat    map[[2]string]uint16
	strIdx map[string]uint16
}

// NewBuilder starts a class named name (internal form) extending
// java/lang/Object.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, super: "java/lang/Object"}
}

// Super sets the super class. An empty name emits no super class.
func (b *Builder) Super(name string) *Builder {
	b.super = name
	return b
}

// Interface adds an implemented interface.
func (b *Builder) Interface(name string) *Builder {
	b.interfaces = append(b.interfaces, name)
	return b
}

// Field adds a field.
func (b *Builder) Field(name, desc string) *Builder {
	b.fields = append(b.fields, [2]string{name, desc})
	return b
}

// Method adds a method.
func (b *Builder) Method(name, desc string) *Builder {
	b.methods = append(b.methods, [2]string{name, desc})
	return b
}

// EnclosingMethod emits an EnclosingMethod attribute. An empty method
// records only the owner.
func (b *Builder) EnclosingMethod(owner, method, desc string) *Builder {
	b.enclosing = &[3]string{owner, method, desc}
	return b
}

// Nested declares an anonymous nested type in the InnerClasses attribute.
func (b *Builder) Nested(name string) *Builder {
	b.nested = append(b.nested, name)
	return b
}

// Reference adds a Class constant without declaring anything.
func (b *Builder) Reference(name string) *Builder {
	b.refs = append(b.refs, name)
	return b
}

// Literal adds a string literal constant.
func (b *Builder) Literal(s string) *Builder {
	b.literals = append(b.literals, s)
	return b
}

// Long adds a long constant, which occupies two pool slots.
func (b *Builder) Long(v int64) *Builder {
	b.longs = append(b.longs, v)
	return b
}

func (b *Builder) utf8(s string) uint16 {
	if idx, ok := b.utf8s[s]; ok {
		return idx
	}
	b.count++
	b.pool.WriteByte(TagUtf8)
	writeU2(&b.pool, uint16(len(s)))
	b.pool.WriteString(s)
	b.utf8s[s] = b.count
	return b.count
}

func (b *Builder) classRef(name string) uint16 {
	if idx, ok := b.class[name]; ok {
		return idx
	}
	n := b.utf8(name)
	b.count++
	b.pool.WriteByte(TagClass)
	writeU2(&b.pool, n)
	b.class[name] = b.count
	return b.count
}

func (b *Builder) nameAndType(name, desc string) uint16 {
	key := [2]string{name, desc}
	if idx, ok := b.nat[key]; ok {
		return idx
	}
	n, d := b.utf8(name), b.utf8(desc)
	b.count++
	b.pool.WriteByte(TagNameAndType)
	writeU2(&b.pool, n)
	writeU2(&b.pool, d)
	b.nat[key] = b.count
	return b.count
}

func (b *Builder) stringRef(s string) uint16 {
	if idx, ok := b.strIdx[s]; ok {
		return idx
	}
	n := b.utf8(s)
	b.count++
	b.pool.WriteByte(TagString)
	writeU2(&b.pool, n)
	b.strIdx[s] = b.count
	return b.count
}

// Bytes encodes the class file. It may be called more than once.
func (b *Builder) Bytes() []byte {
	b.pool.Reset()
	b.count = 0
	b.utf8s = make(map[string]uint16)
	b.class = make(map[string]uint16)
	b.nat = make(map[[2]string]uint16)
	b.strIdx = make(map[string]uint16)

	var body bytes.Buffer
	this := b.classRef(b.name)
	var super uint16
	if b.super != "" {
		super = b.classRef(b.super)
	}
	writeU2(&body, AccPublic|AccSuper)
	writeU2(&body, this)
	writeU2(&body, super)

	writeU2(&body, uint16(len(b.interfaces)))
	for _, iface := range b.interfaces {
		writeU2(&body, b.classRef(iface))
	}
	for _, members := range [][][2]string{b.fields, b.methods} {
		writeU2(&body, uint16(len(members)))
		for _, m := range members {
			writeU2(&body, AccPublic)
			writeU2(&body, b.utf8(m[0]))
			writeU2(&body, b.utf8(m[1]))
			writeU2(&body, 0)
		}
	}
	for _, r := range b.refs {
		b.classRef(r)
	}
	for _, s := range b.literals {
		b.stringRef(s)
	}
	for _, v := range b.longs {
		b.pool.WriteByte(TagLong)
		writeU4(&b.pool, uint32(uint64(v)>>32))
		writeU4(&b.pool, uint32(v))
		b.count += 2
	}

	var attrs bytes.Buffer
	var attrCount uint16
	if b.enclosing != nil {
		attrCount++
		owner := b.classRef(b.enclosing[0])
		var method uint16
		if b.enclosing[1] != "" {
			method = b.nameAndType(b.enclosing[1], b.enclosing[2])
		}
		writeU2(&attrs, b.utf8(AttrEnclosingMethod))
		writeU4(&attrs, 4)
		writeU2(&attrs, owner)
		writeU2(&attrs, method)
	}
	if len(b.nested) > 0 {
		attrCount++
		attrName := b.utf8(AttrInnerClasses)
		var entries bytes.Buffer
		writeU2(&entries, uint16(len(b.nested)))
		for _, n := range b.nested {
			writeU2(&entries, b.classRef(n))
			writeU2(&entries, 0)
			writeU2(&entries, 0)
			writeU2(&entries, 0)
		}
		writeU2(&attrs, attrName)
		writeU4(&attrs, uint32(entries.Len()))
		attrs.Write(entries.Bytes())
	}
	writeU2(&body, attrCount)
	body.Write(attrs.Bytes())

	var out bytes.Buffer
	writeU4(&out, Magic)
	writeU2(&out, 0)
	writeU2(&out, 52)
	writeU2(&out, b.count+1)
	out.Write(b.pool.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeU2(w *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.Write(buf[:])
}

func writeU4(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}
