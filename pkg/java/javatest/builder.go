// Package javatest builds class files for tests.
package javatest

import (
	"encoding/binary"

	"github.com/stackb/jvm-abi/pkg/java"
)

const accSuper = 0x0020

// ClassBuilder assembles a class file. Errors are deferred to Build.
type ClassBuilder struct {
	class     *java.ClassFile
	bootstrap [][]uint16
	finished  bool
	err       error
}

// MemberOption decorates a field or method.
type MemberOption func(b *ClassBuilder, m *java.Member)

// NewClass starts a public class with the given internal name and
// superclass ("" for none).
func NewClass(name, super string) *ClassBuilder {
	b := &ClassBuilder{
		class: &java.ClassFile{
			MajorVersion: 52,
			Pool:         java.NewConstantPool(),
			AccessFlags:  java.AccPublic | accSuper,
		},
	}
	b.class.ThisClass = b.classRef(name)
	if super != "" {
		b.class.SuperClass = b.classRef(super)
	}
	return b
}

// Access replaces the class access flags.
func (b *ClassBuilder) Access(flags uint16) *ClassBuilder {
	b.class.AccessFlags = flags
	return b
}

// Implements adds interfaces.
func (b *ClassBuilder) Implements(names ...string) *ClassBuilder {
	for _, name := range names {
		b.class.Interfaces = append(b.class.Interfaces, b.classRef(name))
	}
	return b
}

// Field adds a field.
func (b *ClassBuilder) Field(access uint16, name, desc string, options ...MemberOption) *ClassBuilder {
	b.class.Fields = append(b.class.Fields, b.member(access, name, desc, options))
	return b
}

// Method adds a method.
func (b *ClassBuilder) Method(access uint16, name, desc string, options ...MemberOption) *ClassBuilder {
	b.class.Methods = append(b.class.Methods, b.member(access, name, desc, options))
	return b
}

// SourceFile adds a SourceFile attribute.
func (b *ClassBuilder) SourceFile(name string) *ClassBuilder {
	b.class.Attributes = append(b.class.Attributes, b.attribute(java.AttrSourceFile, b.u2(b.utf8(name))))
	return b
}

// ClassAnnotated adds a RuntimeVisibleAnnotations attribute to the class.
func (b *ClassBuilder) ClassAnnotated(descs ...string) *ClassBuilder {
	b.class.Attributes = append(b.class.Attributes, b.annotations(java.AttrRuntimeVisibleAnnotations, descs))
	return b
}

// Attribute adds a raw class attribute.
func (b *ClassBuilder) Attribute(name string, data []byte) *ClassBuilder {
	b.class.Attributes = append(b.class.Attributes, b.attribute(name, data))
	return b
}

// Build returns the parsed form of the class.
func (b *ClassBuilder) Build() (*java.ClassFile, error) {
	b.finish()
	if b.err != nil {
		return nil, b.err
	}
	return b.class, nil
}

// Bytes serializes the class; it panics if the builder recorded an error.
func (b *ClassBuilder) Bytes() []byte {
	b.finish()
	if b.err != nil {
		panic(b.err)
	}
	return b.class.Bytes()
}

// Code adds a Code attribute holding the given bytecode.
func Code(bytecode ...byte) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		m.Attributes = append(m.Attributes, b.attribute(java.AttrCode, codeAttribute(bytecode)))
	}
}

// CodeReturningString adds a Code attribute equivalent to `return "s";`.
// The string constant is only referenced from the method body.
func CodeReturningString(s string) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		index := b.check(b.class.Pool.AddString(s))
		// ldc #index; areturn
		m.Attributes = append(m.Attributes, b.attribute(java.AttrCode, codeAttribute([]byte{0x12, byte(index), 0xB0})))
	}
}

// Annotated adds a RuntimeInvisibleAnnotations attribute with marker
// annotations of the given descriptors.
func Annotated(descs ...string) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		m.Attributes = append(m.Attributes, b.annotations(java.AttrRuntimeInvisibleAnnotations, descs))
	}
}

// ConstantInt adds a ConstantValue attribute holding an int.
func ConstantInt(v int32) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		index := b.check(b.class.Pool.AddInteger(v))
		m.Attributes = append(m.Attributes, b.attribute(java.AttrConstantValue, b.u2(index)))
	}
}

// ConstantLong adds a ConstantValue attribute holding a long.
func ConstantLong(v int64) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		index := b.check(b.class.Pool.AddLong(v))
		m.Attributes = append(m.Attributes, b.attribute(java.AttrConstantValue, b.u2(index)))
	}
}

// ConstantString adds a ConstantValue attribute holding a String.
func ConstantString(s string) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		index := b.check(b.class.Pool.AddString(s))
		m.Attributes = append(m.Attributes, b.attribute(java.AttrConstantValue, b.u2(index)))
	}
}

// Signature adds a generic Signature attribute.
func Signature(sig string) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		m.Attributes = append(m.Attributes, b.attribute(java.AttrSignature, b.u2(b.utf8(sig))))
	}
}

// Exceptions adds an Exceptions attribute.
func Exceptions(names ...string) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		data := b.u2(uint16(len(names)))
		for _, name := range names {
			data = append(data, b.u2(b.classRef(name))...)
		}
		m.Attributes = append(m.Attributes, b.attribute(java.AttrExceptions, data))
	}
}

func codeAttribute(bytecode []byte) []byte {
	data := make([]byte, 0, 12+len(bytecode))
	data = binary.BigEndian.AppendUint16(data, 2) // max_stack
	data = binary.BigEndian.AppendUint16(data, 2) // max_locals
	data = binary.BigEndian.AppendUint32(data, uint32(len(bytecode)))
	data = append(data, bytecode...)
	data = binary.BigEndian.AppendUint16(data, 0) // exception_table_length
	data = binary.BigEndian.AppendUint16(data, 0) // attributes_count
	return data
}

func (b *ClassBuilder) member(access uint16, name, desc string, options []MemberOption) *java.Member {
	m := &java.Member{
		AccessFlags:     access,
		NameIndex:       b.utf8(name),
		DescriptorIndex: b.utf8(desc),
	}
	for _, opt := range options {
		opt(b, m)
	}
	return m
}

func (b *ClassBuilder) annotations(attr string, descs []string) *java.Attribute {
	data := b.u2(uint16(len(descs)))
	for _, desc := range descs {
		data = append(data, b.u2(b.utf8(desc))...)
		data = append(data, 0, 0) // num_element_value_pairs
	}
	return b.attribute(attr, data)
}

func (b *ClassBuilder) attribute(name string, data []byte) *java.Attribute {
	return &java.Attribute{NameIndex: b.utf8(name), Data: data}
}

func (b *ClassBuilder) classRef(name string) uint16 {
	return b.check(b.class.Pool.AddClass(name))
}

func (b *ClassBuilder) utf8(s string) uint16 {
	return b.check(b.class.Pool.AddUtf8(s))
}

func (b *ClassBuilder) u2(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func (b *ClassBuilder) check(index uint16, err error) uint16 {
	if err != nil && b.err == nil {
		b.err = err
	}
	return index
}
