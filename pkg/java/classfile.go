package java

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const classMagic = 0xCAFEBABE

// Access flags shared by classes, fields and methods.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccBridge     = 0x0040
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
	AccModule     = 0x8000
)

// ErrTruncated is returned when a class file ends prematurely.
var ErrTruncated = errors.New("truncated class file")

// Attribute is an undecoded attribute; Data excludes the name index and
// length header.
type Attribute struct {
	NameIndex uint16
	Data      []byte
}

// Member is a field_info or method_info structure.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []*Attribute
}

// ClassFile is a parsed JVM class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}
	if magic := r.u4(); r.err == nil && magic != classMagic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}
	c := &ClassFile{
		MinorVersion: r.u2(),
		MajorVersion: r.u2(),
	}
	if r.err != nil {
		return nil, r.err
	}
	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool
	c.AccessFlags = r.u2()
	c.ThisClass = r.u2()
	c.SuperClass = r.u2()
	n := r.u2()
	for i := 0; i < int(n) && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, r.u2())
	}
	c.Fields = readMembers(r)
	c.Methods = readMembers(r)
	c.Attributes = readAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after class file", len(data)-r.off)
	}
	if _, err := c.Pool.ClassName(c.ThisClass); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	return c, nil
}

func readMembers(r *reader) []*Member {
	n := r.u2()
	var members []*Member
	for i := 0; i < int(n) && r.err == nil; i++ {
		members = append(members, &Member{
			AccessFlags:     r.u2(),
			NameIndex:       r.u2(),
			DescriptorIndex: r.u2(),
			Attributes:      readAttributes(r),
		})
	}
	return members
}

func readAttributes(r *reader) []*Attribute {
	n := r.u2()
	var attrs []*Attribute
	for i := 0; i < int(n) && r.err == nil; i++ {
		name := r.u2()
		size := r.u4()
		data := r.bytes(int(size))
		if r.err != nil {
			break
		}
		attrs = append(attrs, &Attribute{NameIndex: name, Data: append([]byte(nil), data...)})
	}
	return attrs
}

// Bytes serializes the class file.
func (c *ClassFile) Bytes() []byte {
	w := &writer{}
	w.u4(classMagic)
	w.u2(c.MinorVersion)
	w.u2(c.MajorVersion)
	c.Pool.write(w)
	w.u2(c.AccessFlags)
	w.u2(c.ThisClass)
	w.u2(c.SuperClass)
	w.u2(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.u2(i)
	}
	writeMembers(w, c.Fields)
	writeMembers(w, c.Methods)
	writeAttributes(w, c.Attributes)
	return w.buf.Bytes()
}

func writeMembers(w *writer, members []*Member) {
	w.u2(uint16(len(members)))
	for _, m := range members {
		w.u2(m.AccessFlags)
		w.u2(m.NameIndex)
		w.u2(m.DescriptorIndex)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *writer, attrs []*Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.NameIndex)
		w.u4(uint32(len(a.Data)))
		w.raw(a.Data)
	}
}

// Name returns the internal name of the class (e.g. "com/foo/Bar").
func (c *ClassFile) Name() string {
	name, _ := c.Pool.ClassName(c.ThisClass)
	return name
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object and module-info.
func (c *ClassFile) SuperName() string {
	if c.SuperClass == 0 {
		return ""
	}
	name, _ := c.Pool.ClassName(c.SuperClass)
	return name
}

// InterfaceNames returns the internal names of the directly implemented
// interfaces, in declaration order.
func (c *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if name, err := c.Pool.ClassName(i); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// AttributeName resolves the name of an attribute.
func (c *ClassFile) AttributeName(a *Attribute) string {
	name, _ := c.Pool.Utf8(a.NameIndex)
	return name
}

// MemberName returns the name of a field or method.
func (c *ClassFile) MemberName(m *Member) string {
	name, _ := c.Pool.Utf8(m.NameIndex)
	return name
}

// MemberDescriptor returns the descriptor of a field or method.
func (c *ClassFile) MemberDescriptor(m *Member) string {
	desc, _ := c.Pool.Utf8(m.DescriptorIndex)
	return desc
}

// FindAttribute returns the first attribute with the given name.
func (c *ClassFile) FindAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if c.AttributeName(a) == name {
			return a
		}
	}
	return nil
}

// BinaryName converts an internal name into a dotted binary name
// ("com/foo/Bar$Baz" -> "com.foo.Bar$Baz").
func BinaryName(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) u1(v uint8) {
	w.buf.WriteByte(v)
}

func (w *writer) u2(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u4(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) raw(b []byte) {
	w.buf.Write(b)
}
