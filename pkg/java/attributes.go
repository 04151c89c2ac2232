package java

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Attribute names.
const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrSignature                            = "Signature"
	AttrExceptions                           = "Exceptions"
	AttrSourceFile                           = "SourceFile"
	AttrSourceDebugExtension                 = "SourceDebugExtension"
	AttrInnerClasses                         = "InnerClasses"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrNestHost                             = "NestHost"
	AttrNestMembers                          = "NestMembers"
	AttrPermittedSubclasses                  = "PermittedSubclasses"
	AttrDeprecated                           = "Deprecated"
	AttrSynthetic                            = "Synthetic"
	AttrMethodParameters                     = "MethodParameters"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrRecord                               = "Record"
	AttrModule                               = "Module"
	AttrModulePackages                       = "ModulePackages"
	AttrModuleMainClass                      = "ModuleMainClass"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrStackMapTable                        = "StackMapTable"
	AttrLineNumberTable                      = "LineNumberTable"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
)

// errUnremappable marks attributes whose constant pool references cannot be
// enumerated or rewritten, forcing the original pool to be kept.
var errUnremappable = errors.New("attribute references cannot be enumerated")

// refVisitor is called for every constant pool index inside an attribute;
// off is the offset of the index within the attribute data and size its
// width in bytes (1 for ldc operands, 2 otherwise).
type refVisitor func(off, size int, index uint16) error

type refWalker struct {
	pool  *ConstantPool
	data  []byte
	off   int
	end   int
	visit refVisitor
	err   error
}

// walkAttributeRefs enumerates constant pool references held in the data of
// the named attribute. The pool is used to resolve the names of nested
// attributes (Record components).
func walkAttributeRefs(pool *ConstantPool, name string, data []byte, visit refVisitor) error {
	w := &refWalker{pool: pool, data: data, end: len(data), visit: visit}
	w.attribute(name)
	if w.err == nil && w.off != w.end {
		w.err = fmt.Errorf("%s: %d unread bytes", name, w.end-w.off)
	}
	return w.err
}

func (w *refWalker) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *refWalker) skip(n int) {
	if w.err != nil {
		return
	}
	if w.off+n > w.end {
		w.fail(ErrTruncated)
		return
	}
	w.off += n
}

func (w *refWalker) u1() int {
	if w.err != nil || w.off+1 > w.end {
		w.fail(ErrTruncated)
		return 0
	}
	v := w.data[w.off]
	w.off++
	return int(v)
}

func (w *refWalker) u2() int {
	if w.err != nil || w.off+2 > w.end {
		w.fail(ErrTruncated)
		return 0
	}
	v := binary.BigEndian.Uint16(w.data[w.off:])
	w.off += 2
	return int(v)
}

func (w *refWalker) u4() int {
	if w.err != nil || w.off+4 > w.end {
		w.fail(ErrTruncated)
		return 0
	}
	v := binary.BigEndian.Uint32(w.data[w.off:])
	w.off += 4
	return int(v)
}

// ref reads a u2 pool index and reports it; it returns the index as read
// before the visitor had a chance to rewrite it.
func (w *refWalker) ref() uint16 {
	if w.err != nil || w.off+2 > w.end {
		w.fail(ErrTruncated)
		return 0
	}
	off := w.off
	index := binary.BigEndian.Uint16(w.data[off:])
	w.off += 2
	if err := w.visit(off, 2, index); err != nil {
		w.fail(err)
	}
	return index
}

// ref1 reads a u1 pool index, the operand of ldc.
func (w *refWalker) ref1() {
	if w.err != nil || w.off+1 > w.end {
		w.fail(ErrTruncated)
		return
	}
	off := w.off
	w.off++
	if err := w.visit(off, 1, uint16(w.data[off])); err != nil {
		w.fail(err)
	}
}

func (w *refWalker) refList() {
	n := w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		w.ref()
	}
}

func (w *refWalker) attribute(name string) {
	switch name {
	case AttrConstantValue, AttrSignature, AttrSourceFile, AttrNestHost, AttrModuleMainClass:
		w.ref()
	case AttrExceptions, AttrNestMembers, AttrPermittedSubclasses, AttrModulePackages:
		w.refList()
	case AttrDeprecated, AttrSynthetic:
	case AttrInnerClasses:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.ref() // inner_class_info
			w.ref() // outer_class_info
			w.ref() // inner_name
			w.skip(2)
		}
	case AttrEnclosingMethod:
		w.ref()
		w.ref()
	case AttrMethodParameters:
		n := w.u1()
		for i := 0; i < n && w.err == nil; i++ {
			w.ref()
			w.skip(2)
		}
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.annotation()
		}
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
		params := w.u1()
		for i := 0; i < params && w.err == nil; i++ {
			n := w.u2()
			for j := 0; j < n && w.err == nil; j++ {
				w.annotation()
			}
		}
	case AttrRuntimeVisibleTypeAnnotations, AttrRuntimeInvisibleTypeAnnotations:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.typeAnnotation()
		}
	case AttrAnnotationDefault:
		w.elementValue()
	case AttrRecord:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.ref() // name
			w.ref() // descriptor
			w.nestedAttributes()
		}
	case AttrCode:
		w.skip(4) // max_stack, max_locals
		w.code(w.u4())
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.skip(6) // start_pc, end_pc, handler_pc
			w.ref()   // catch_type
		}
		w.nestedAttributes()
	case AttrStackMapTable:
		w.stackMapTable()
	case AttrLineNumberTable:
		w.skip(4 * w.u2())
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.skip(4) // start_pc, length
			w.ref()   // name
			w.ref()   // descriptor or signature
			w.skip(2) // index
		}
	case AttrBootstrapMethods:
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.ref() // bootstrap_method_ref
			w.refList()
		}
	case AttrModule:
		w.module()
	default:
		w.fail(fmt.Errorf("%s: %w", name, errUnremappable))
	}
}

func (w *refWalker) nestedAttributes() {
	n := w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		nameIndex := w.ref()
		size := w.u4()
		if w.err != nil {
			return
		}
		if w.off+size > w.end {
			w.fail(ErrTruncated)
			return
		}
		name, err := w.pool.Utf8(nameIndex)
		if err != nil {
			w.fail(err)
			return
		}
		end := w.end
		w.end = w.off + size
		w.attribute(name)
		if w.err == nil && w.off != w.end {
			w.fail(fmt.Errorf("%s: %d unread bytes", name, w.end-w.off))
		}
		w.end = end
	}
}

func (w *refWalker) module() {
	w.ref()   // module_name
	w.skip(2) // module_flags
	w.ref()   // module_version
	n := w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		w.ref() // requires
		w.skip(2)
		w.ref() // requires_version
	}
	for range 2 { // exports, then opens
		n = w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.ref() // package
			w.skip(2)
			w.refList()
		}
	}
	w.refList() // uses
	n = w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		w.ref() // provides
		w.refList()
	}
}

func (w *refWalker) annotation() {
	w.ref() // type_index
	pairs := w.u2()
	for i := 0; i < pairs && w.err == nil; i++ {
		w.ref() // element_name_index
		w.elementValue()
	}
}

func (w *refWalker) elementValue() {
	switch tag := w.u1(); tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		w.ref()
	case 'e':
		w.ref() // type_name_index
		w.ref() // const_name_index
	case '@':
		w.annotation()
	case '[':
		n := w.u2()
		for i := 0; i < n && w.err == nil; i++ {
			w.elementValue()
		}
	default:
		if w.err == nil {
			w.fail(fmt.Errorf("unknown element_value tag %q", rune(tag)))
		}
	}
}

func (w *refWalker) typeAnnotation() {
	switch target := w.u1(); {
	case target == 0x00, target == 0x01, target == 0x16:
		w.skip(1)
	case target == 0x10, target == 0x17, target >= 0x42 && target <= 0x46:
		w.skip(2)
	case target == 0x11, target == 0x12:
		w.skip(2)
	case target >= 0x13 && target <= 0x15:
	case target == 0x40, target == 0x41:
		n := w.u2()
		w.skip(6 * n)
	case target >= 0x47 && target <= 0x4B:
		w.skip(3)
	default:
		if w.err == nil {
			w.fail(fmt.Errorf("unknown type annotation target 0x%02X", target))
		}
	}
	pathLength := w.u1()
	w.skip(2 * pathLength)
	w.annotation()
}

// AnnotationTypes returns the descriptors of the annotations held directly in
// a Runtime(In)VisibleAnnotations attribute.
func AnnotationTypes(pool *ConstantPool, data []byte) ([]string, error) {
	var (
		types    []string
		want     bool
		typeName uint16
	)
	w := &refWalker{pool: pool, data: data, end: len(data)}
	w.visit = func(off, size int, index uint16) error {
		if want {
			typeName = index
			want = false
		}
		return nil
	}
	n := w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		want = true
		w.annotation()
		if w.err != nil {
			break
		}
		desc, err := pool.Utf8(typeName)
		if err != nil {
			return nil, err
		}
		types = append(types, desc)
	}
	if w.err != nil {
		return nil, w.err
	}
	return types, nil
}
