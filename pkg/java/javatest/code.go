package javatest

import (
	"encoding/binary"
	"strings"

	"github.com/stackb/jvm-abi/pkg/java"
)

// Handler is an exception table entry. CatchType is an internal class name,
// or empty for a handler that catches everything.
type Handler struct {
	StartPC, EndPC, HandlerPC uint16
	CatchType                 string
}

// Body describes a Code attribute.
type Body struct {
	// Instructions returns the bytecode; it may add constants through the
	// builder's reference helpers.
	Instructions func(b *ClassBuilder) []byte
	Handlers     []Handler
	// Line adds a LineNumberTable mapping pc 0 to Line when non-zero.
	Line uint16
	// Locals adds a LocalVariableTable with one "name:descriptor" entry per
	// slot.
	Locals []string
	// StackMapObjects adds a StackMapTable holding one full frame whose
	// locals are the named classes.
	StackMapObjects []string
}

// CodeBody adds a Code attribute described by body.
func CodeBody(body Body) MemberOption {
	return func(b *ClassBuilder, m *java.Member) {
		code := body.Instructions(b)
		data := binary.BigEndian.AppendUint16(nil, 4) // max_stack
		data = binary.BigEndian.AppendUint16(data, 4) // max_locals
		data = binary.BigEndian.AppendUint32(data, uint32(len(code)))
		data = append(data, code...)
		data = binary.BigEndian.AppendUint16(data, uint16(len(body.Handlers)))
		for _, h := range body.Handlers {
			var catchType uint16
			if h.CatchType != "" {
				catchType = b.ClassIndex(h.CatchType)
			}
			for _, v := range []uint16{h.StartPC, h.EndPC, h.HandlerPC, catchType} {
				data = binary.BigEndian.AppendUint16(data, v)
			}
		}

		var nested []*java.Attribute
		if body.Line != 0 {
			nested = append(nested, b.attribute(java.AttrLineNumberTable, []byte{0, 1, 0, 0, byte(body.Line >> 8), byte(body.Line)}))
		}
		if len(body.Locals) > 0 {
			table := b.u2(uint16(len(body.Locals)))
			for i, local := range body.Locals {
				name, desc, _ := strings.Cut(local, ":")
				table = append(table, b.u2(0)...)
				table = append(table, b.u2(uint16(len(code)))...)
				table = append(table, b.u2(b.utf8(name))...)
				table = append(table, b.u2(b.utf8(desc))...)
				table = append(table, b.u2(uint16(i))...)
			}
			nested = append(nested, b.attribute(java.AttrLocalVariableTable, table))
		}
		if len(body.StackMapObjects) > 0 {
			frame := append(b.u2(1), 255) // one full_frame
			frame = append(frame, b.u2(0)...)
			frame = append(frame, b.u2(uint16(len(body.StackMapObjects)))...)
			for _, name := range body.StackMapObjects {
				frame = append(frame, 7) // Object_variable_info
				frame = append(frame, b.u2(b.ClassIndex(name))...)
			}
			frame = append(frame, b.u2(0)...) // empty stack
			nested = append(nested, b.attribute(java.AttrStackMapTable, frame))
		}
		data = binary.BigEndian.AppendUint16(data, uint16(len(nested)))
		for _, a := range nested {
			data = binary.BigEndian.AppendUint16(data, a.NameIndex)
			data = binary.BigEndian.AppendUint32(data, uint32(len(a.Data)))
			data = append(data, a.Data...)
		}
		m.Attributes = append(m.Attributes, b.attribute(java.AttrCode, data))
	}
}

// ClassIndex returns the pool index of a Class constant.
func (b *ClassBuilder) ClassIndex(name string) uint16 {
	return b.classRef(name)
}

// StringIndex returns the pool index of a String constant.
func (b *ClassBuilder) StringIndex(s string) uint16 {
	return b.check(b.class.Pool.AddString(s))
}

// FieldRef returns the pool index of a Fieldref constant.
func (b *ClassBuilder) FieldRef(owner, name, desc string) uint16 {
	return b.memberRef(java.ConstantFieldref, owner, name, desc)
}

// MethodRef returns the pool index of a Methodref constant.
func (b *ClassBuilder) MethodRef(owner, name, desc string) uint16 {
	return b.memberRef(java.ConstantMethodref, owner, name, desc)
}

// InvokeDynamic returns the pool index of an InvokeDynamic constant whose
// bootstrap method receives a handle to implOwner.implName as its argument.
// The class gets a BootstrapMethods attribute when built.
func (b *ClassBuilder) InvokeDynamic(name, desc, implOwner, implName, implDesc string) uint16 {
	metafactory := b.methodHandle(6, b.MethodRef("java/lang/invoke/LambdaMetafactory", "metafactory", "()Ljava/lang/invoke/CallSite;"))
	impl := b.methodHandle(6, b.MethodRef(implOwner, implName, implDesc))
	b.bootstrap = append(b.bootstrap, []uint16{metafactory, impl})
	info := b.u2(uint16(len(b.bootstrap) - 1))
	info = append(info, b.u2(b.nameAndType(name, desc))...)
	return b.check(b.class.Pool.Add(java.Constant{Tag: java.ConstantInvokeDynamic, Info: info}))
}

func (b *ClassBuilder) memberRef(tag java.ConstantTag, owner, name, desc string) uint16 {
	info := b.u2(b.classRef(owner))
	info = append(info, b.u2(b.nameAndType(name, desc))...)
	return b.check(b.class.Pool.Add(java.Constant{Tag: tag, Info: info}))
}

func (b *ClassBuilder) nameAndType(name, desc string) uint16 {
	info := b.u2(b.utf8(name))
	info = append(info, b.u2(b.utf8(desc))...)
	return b.check(b.class.Pool.Add(java.Constant{Tag: java.ConstantNameAndType, Info: info}))
}

func (b *ClassBuilder) methodHandle(kind byte, ref uint16) uint16 {
	info := append([]byte{kind}, b.u2(ref)...)
	return b.check(b.class.Pool.Add(java.Constant{Tag: java.ConstantMethodHandle, Info: info}))
}

// finish appends the BootstrapMethods attribute once.
func (b *ClassBuilder) finish() {
	if b.finished || len(b.bootstrap) == 0 {
		return
	}
	b.finished = true
	data := b.u2(uint16(len(b.bootstrap)))
	for _, entry := range b.bootstrap {
		data = append(data, b.u2(entry[0])...)
		data = append(data, b.u2(uint16(len(entry)-1))...)
		for _, arg := range entry[1:] {
			data = append(data, b.u2(arg)...)
		}
	}
	b.class.Attributes = append(b.class.Attributes, b.attribute(java.AttrBootstrapMethods, data))
}
