package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the leading word of every class file.
const Magic = 0xCAFEBABE

// Constant pool tags.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Attribute names the reader interprets.
const (
	AttrEnclosingMethod = "EnclosingMethod"
	AttrInnerClasses    = "InnerClasses"
)

var (
	ErrTruncated = errors.New("classfile: truncated input")
	ErrBadMagic  = errors.New("classfile: bad magic")
	ErrBadTag    = errors.New("classfile: unknown constant pool tag")
	ErrBadIndex  = errors.New("classfile: constant pool index out of range")
	ErrWrongKind = errors.New("classfile: constant has unexpected kind")
	ErrTooLong   = errors.New("classfile: utf8 constant longer than 65535 bytes")
)

// FormatError locates a decoding failure inside the input.
type FormatError struct {
	Offset int
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Constant is one constant pool slot. The second slot of a long or double
// constant has Tag 0.
type Constant struct {
	Tag  uint8
	Utf8 []byte // TagUtf8 payload
	Ref1 uint16 // first index (class name, name, bootstrap, kind...)
	Ref2 uint16 // second index (descriptor, name-and-type...)
	raw  []byte // encoded entry including the tag
}

// Member is a field or method.
type Member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []Attribute
}

// Attribute is a named, undecoded attribute.
type Attribute struct {
	Name string
	Data []byte
}

// InnerClass is one entry of the InnerClasses attribute. Outer is empty for
// local and anonymous types; SimpleName is empty for anonymous ones.
type InnerClass struct {
	Inner       string
	Outer       string
	SimpleName  string
	AccessFlags uint16
}

// File is a decoded class file. Only the parts needed for identity
// matching and symbol patching are decoded; method bodies stay opaque.
type File struct {
	Minor       uint16
	Major       uint16
	Constants   []Constant // index 0 is unused
	AccessFlags uint16
	This        uint16
	Super       uint16
	Interfaces  []uint16
	Fields      []Member
	Methods     []Member
	Attributes  []Attribute

	poolEnd int
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) fail(err error) error {
	return &FormatError{Offset: r.off, Err: err}
}

func (r *reader) u1() (uint8, error) {
	if r.off+1 > len(r.b) {
		return 0, r.fail(ErrTruncated)
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if r.off+2 > len(r.b) {
		return 0, r.fail(ErrTruncated)
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.off+4 > len(r.b) {
		return 0, r.fail(ErrTruncated)
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.b) {
		return nil, r.fail(ErrTruncated)
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v, nil
}

// Parse decodes b. The returned File aliases b.
func Parse(b []byte) (*File, error) {
	f, r, err := parseHead(b)
	if err != nil {
		return nil, err
	}

	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	f.Interfaces = make([]uint16, 0, count)
	for i := 0; i < int(count); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		f.Interfaces = append(f.Interfaces, idx)
	}

	if f.Fields, err = f.readMembers(r); err != nil {
		return nil, err
	}
	if f.Methods, err = f.readMembers(r); err != nil {
		return nil, err
	}
	if f.Attributes, err = f.readAttributes(r); err != nil {
		return nil, err
	}
	return f, nil
}

// parseHead decodes everything up to and including the super class index.
func parseHead(b []byte) (*File, *reader, error) {
	r := &reader{b: b}
	magic, err := r.u4()
	if err != nil {
		return nil, nil, err
	}
	if magic != Magic {
		r.off = 0
		return nil, nil, r.fail(ErrBadMagic)
	}

	f := &File{}
	if f.Minor, err = r.u2(); err != nil {
		return nil, nil, err
	}
	if f.Major, err = r.u2(); err != nil {
		return nil, nil, err
	}
	if err := f.readPool(r); err != nil {
		return nil, nil, err
	}
	if f.AccessFlags, err = r.u2(); err != nil {
		return nil, nil, err
	}
	if f.This, err = r.u2(); err != nil {
		return nil, nil, err
	}
	if f.Super, err = r.u2(); err != nil {
		return nil, nil, err
	}
	return f, r, nil
}

func (f *File) readPool(r *reader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	f.Constants = make([]Constant, count)
	for i := 1; i < int(count); i++ {
		start := r.off
		tag, err := r.u1()
		if err != nil {
			return err
		}
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			n, err := r.u2()
			if err != nil {
				return err
			}
			if c.Utf8, err = r.bytes(int(n)); err != nil {
				return err
			}
		case TagInteger, TagFloat:
			if _, err := r.bytes(4); err != nil {
				return err
			}
		case TagLong, TagDouble:
			if _, err := r.bytes(8); err != nil {
				return err
			}
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			if c.Ref1, err = r.u2(); err != nil {
				return err
			}
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			if c.Ref1, err = r.u2(); err != nil {
				return err
			}
			if c.Ref2, err = r.u2(); err != nil {
				return err
			}
		case TagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return err
			}
			c.Ref1 = uint16(kind)
			if c.Ref2, err = r.u2(); err != nil {
				return err
			}
		default:
			r.off = start
			return r.fail(fmt.Errorf("%w %d at index %d", ErrBadTag, tag, i))
		}
		c.raw = r.b[start:r.off]
		f.Constants[i] = c
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	f.poolEnd = r.off
	return nil
}

func (f *File) readMembers(r *reader) ([]Member, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, count)
	for i := 0; i < int(count); i++ {
		var m Member
		if m.AccessFlags, err = r.u2(); err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if m.Name, err = f.Utf8At(nameIdx); err != nil {
			return nil, r.fail(err)
		}
		if m.Descriptor, err = f.Utf8At(descIdx); err != nil {
			return nil, r.fail(err)
		}
		if m.Attributes, err = f.readAttributes(r); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (f *File) readAttributes(r *reader) ([]Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := f.Utf8At(nameIdx)
		if err != nil {
			return nil, r.fail(err)
		}
		n, err := r.u4()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: name, Data: data})
	}
	return attrs, nil
}

// Utf8At returns the Utf8 constant at idx.
func (f *File) Utf8At(idx uint16) (string, error) {
	c, err := f.constant(idx, TagUtf8)
	if err != nil {
		return "", err
	}
	return string(c.Utf8), nil
}

// ClassAt returns the internal name referenced by the Class constant at idx.
func (f *File) ClassAt(idx uint16) (string, error) {
	c, err := f.constant(idx, TagClass)
	if err != nil {
		return "", err
	}
	return f.Utf8At(c.Ref1)
}

func (f *File) constant(idx uint16, tag uint8) (Constant, error) {
	if idx == 0 || int(idx) >= len(f.Constants) {
		return Constant{}, fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}
	c := f.Constants[idx]
	if c.Tag != tag {
		return Constant{}, fmt.Errorf("%w: index %d has tag %d, want %d", ErrWrongKind, idx, c.Tag, tag)
	}
	return c, nil
}

// Name returns the internal name of the class.
func (f *File) Name() (string, error) {
	return f.ClassAt(f.This)
}

// SuperName returns the internal name of the super class, or "" for the
// root of the hierarchy.
func (f *File) SuperName() (string, error) {
	if f.Super == 0 {
		return "", nil
	}
	return f.ClassAt(f.Super)
}

// InterfaceNames returns the declared interfaces in declaration order.
func (f *File) InterfaceNames() ([]string, error) {
	names := make([]string, 0, len(f.Interfaces))
	for _, idx := range f.Interfaces {
		n, err := f.ClassAt(idx)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, nil
}

// ClassNames returns every class name referenced from the constant pool,
// in pool order, without duplicates.
func (f *File) ClassNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, c := range f.Constants {
		if c.Tag != TagClass {
			continue
		}
		n, err := f.Utf8At(c.Ref1)
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}

func (f *File) attribute(name string) ([]byte, bool) {
	for _, a := range f.Attributes {
		if a.Name == name {
			return a.Data, true
		}
	}
	return nil, false
}

// EnclosingMethod decodes the EnclosingMethod attribute. method and desc are
// empty when the type is enclosed by an initializer rather than a method.
func (f *File) EnclosingMethod() (owner, method, desc string, ok bool, err error) {
	data, found := f.attribute(AttrEnclosingMethod)
	if !found {
		return "", "", "", false, nil
	}
	if len(data) != 4 {
		return "", "", "", false, fmt.Errorf("%w: EnclosingMethod length %d", ErrTruncated, len(data))
	}
	classIdx := binary.BigEndian.Uint16(data)
	methodIdx := binary.BigEndian.Uint16(data[2:])
	if owner, err = f.ClassAt(classIdx); err != nil {
		return "", "", "", false, err
	}
	if methodIdx != 0 {
		nt, err := f.constant(methodIdx, TagNameAndType)
		if err != nil {
			return "", "", "", false, err
		}
		if method, err = f.Utf8At(nt.Ref1); err != nil {
			return "", "", "", false, err
		}
		if desc, err = f.Utf8At(nt.Ref2); err != nil {
			return "", "", "", false, err
		}
	}
	return owner, method, desc, true, nil
}

// InnerClasses decodes the InnerClasses attribute.
func (f *File) InnerClasses() ([]InnerClass, error) {
	data, found := f.attribute(AttrInnerClasses)
	if !found {
		return nil, nil
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: InnerClasses length %d", ErrTruncated, len(data))
	}
	count := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+8*count {
		return nil, fmt.Errorf("%w: InnerClasses length %d for %d entries", ErrTruncated, len(data), count)
	}
	entries := make([]InnerClass, 0, count)
	for i := 0; i < count; i++ {
		p := data[2+8*i:]
		var ic InnerClass
		var err error
		if ic.Inner, err = f.ClassAt(binary.BigEndian.Uint16(p)); err != nil {
			return nil, err
		}
		if idx := binary.BigEndian.Uint16(p[2:]); idx != 0 {
			if ic.Outer, err = f.ClassAt(idx); err != nil {
				return nil, err
			}
		}
		if idx := binary.BigEndian.Uint16(p[4:]); idx != 0 {
			if ic.SimpleName, err = f.Utf8At(idx); err != nil {
				return nil, err
			}
		}
		ic.AccessFlags = binary.BigEndian.Uint16(p[6:])
		entries = append(entries, ic)
	}
	return entries, nil
}
