package java

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultInlineAnnotations are the annotation descriptors that mark a method
// as inline when no explicit set is configured. Only markers that compilers
// record as classfile annotations can be matched: Scala's @inline lives in the
// Scala signature and a public Kotlin inline fun is flagged in kotlin.Metadata.
var DefaultInlineAnnotations = []string{
	"Lkotlin/internal/InlineOnly;",
}

var (
	fieldABIAttributes = attributeSet(
		AttrConstantValue,
		AttrSignature,
		AttrDeprecated,
		AttrSynthetic,
		AttrRuntimeVisibleAnnotations,
		AttrRuntimeInvisibleAnnotations,
		AttrRuntimeVisibleTypeAnnotations,
		AttrRuntimeInvisibleTypeAnnotations,
	)
	methodABIAttributes = attributeSet(
		AttrSignature,
		AttrExceptions,
		AttrAnnotationDefault,
		AttrDeprecated,
		AttrSynthetic,
		AttrMethodParameters,
		AttrRuntimeVisibleAnnotations,
		AttrRuntimeInvisibleAnnotations,
		AttrRuntimeVisibleParameterAnnotations,
		AttrRuntimeInvisibleParameterAnnotations,
		AttrRuntimeVisibleTypeAnnotations,
		AttrRuntimeInvisibleTypeAnnotations,
	)
	classABIAttributes = attributeSet(
		AttrSignature,
		AttrInnerClasses,
		AttrEnclosingMethod,
		AttrNestHost,
		AttrNestMembers,
		AttrPermittedSubclasses,
		AttrRecord,
		AttrModule,
		AttrModulePackages,
		AttrModuleMainClass,
		AttrDeprecated,
		AttrSynthetic,
		AttrRuntimeVisibleAnnotations,
		AttrRuntimeInvisibleAnnotations,
		AttrRuntimeVisibleTypeAnnotations,
		AttrRuntimeInvisibleTypeAnnotations,
	)
)

func attributeSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// ABIPolicy controls how a class is reduced to its binary interface.
type ABIPolicy struct {
	// InlineAnnotations is the set of annotation descriptors that mark a
	// method as inline. Inline methods keep their Code attribute.
	InlineAnnotations []string
}

// NewABIPolicy returns a policy using the given inline annotation
// descriptors, or DefaultInlineAnnotations when none are given.
func NewABIPolicy(inlineAnnotations ...string) ABIPolicy {
	if len(inlineAnnotations) == 0 {
		inlineAnnotations = DefaultInlineAnnotations
	}
	return ABIPolicy{InlineAnnotations: append([]string(nil), inlineAnnotations...)}
}

// IsInline reports whether m is a non-private method carrying one of the
// policy's inline annotations.
func (p ABIPolicy) IsInline(c *ClassFile, m *Member) (bool, error) {
	if m.AccessFlags&AccPrivate != 0 {
		return false, nil
	}
	for _, name := range []string{AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations} {
		a := c.FindAttribute(m.Attributes, name)
		if a == nil {
			continue
		}
		types, err := AnnotationTypes(c.Pool, a.Data)
		if err != nil {
			return false, fmt.Errorf("method %s: %s: %w", c.MemberName(m), name, err)
		}
		for _, t := range types {
			for _, want := range p.InlineAnnotations {
				if t == want {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// InlineFunctions returns the qualified names ("pkg.Outer$Inner.method") of
// the inline methods of c in declaration order. Overloads are reported once.
func (c *ClassFile) InlineFunctions(p ABIPolicy) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	owner := BinaryName(c.Name())
	for _, m := range c.Methods {
		inline, err := p.IsInline(c, m)
		if err != nil {
			return nil, err
		}
		if !inline {
			continue
		}
		name := owner + "." + c.MemberName(m)
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// ReduceToABI returns a copy of c holding only its binary interface:
// private members, non-bridge synthetic members, method bodies (except those
// of inline methods) and debug attributes are removed. Inline bodies keep
// their instructions but lose line number and local variable tables. The
// constant pool is rebuilt to the entries still referenced. The receiver is
// not modified.
func (c *ClassFile) ReduceToABI(p ABIPolicy) (*ClassFile, error) {
	out := &ClassFile{
		MinorVersion: c.MinorVersion,
		MajorVersion: c.MajorVersion,
		Pool:         c.Pool,
		AccessFlags:  c.AccessFlags,
		ThisClass:    c.ThisClass,
		SuperClass:   c.SuperClass,
		Interfaces:   append([]uint16(nil), c.Interfaces...),
	}

	for _, f := range c.Fields {
		if !isABIMember(f) {
			continue
		}
		attrs, err := c.filterAttributes(f.Attributes, fieldABIAttributes, false)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, &Member{
			AccessFlags:     f.AccessFlags,
			NameIndex:       f.NameIndex,
			DescriptorIndex: f.DescriptorIndex,
			Attributes:      attrs,
		})
	}

	keptCode := false
	for _, m := range c.Methods {
		if !isABIMember(m) || c.MemberName(m) == "<clinit>" {
			continue
		}
		inline, err := p.IsInline(c, m)
		if err != nil {
			return nil, err
		}
		keptCode = keptCode || (inline && c.FindAttribute(m.Attributes, AttrCode) != nil)
		attrs, err := c.filterAttributes(m.Attributes, methodABIAttributes, inline)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", c.MemberName(m), err)
		}
		out.Methods = append(out.Methods, &Member{
			AccessFlags:     m.AccessFlags,
			NameIndex:       m.NameIndex,
			DescriptorIndex: m.DescriptorIndex,
			Attributes:      attrs,
		})
	}

	for _, a := range c.Attributes {
		name := c.AttributeName(a)
		if classABIAttributes[name] || (keptCode && name == AttrBootstrapMethods) {
			out.Attributes = append(out.Attributes, a)
		}
	}

	return out.compact()
}

func isABIMember(m *Member) bool {
	if m.AccessFlags&AccPrivate != 0 {
		return false
	}
	if m.AccessFlags&AccSynthetic != 0 && m.AccessFlags&AccBridge == 0 {
		return false
	}
	return true
}

func (c *ClassFile) filterAttributes(attrs []*Attribute, keep map[string]bool, keepCode bool) ([]*Attribute, error) {
	var out []*Attribute
	for _, a := range attrs {
		name := c.AttributeName(a)
		switch {
		case keep[name]:
			out = append(out, a)
		case keepCode && name == AttrCode:
			code, err := c.stripCodeDebug(a)
			if err != nil {
				return nil, err
			}
			out = append(out, code)
		}
	}
	return out, nil
}

// compact rebuilds the constant pool so it only holds entries referenced by
// the class structure. When references cannot be rewritten (an unknown
// attribute, or an ldc operand that no longer fits in a byte) the receiver
// is returned unchanged.
func (c *ClassFile) compact() (*ClassFile, error) {
	b := newPoolBuilder(c.Pool)
	out, err := b.class(c)
	if errors.Is(err, errUnremappable) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rebuilding constant pool: %w", err)
	}
	return out, nil
}

func (b *poolBuilder) class(c *ClassFile) (*ClassFile, error) {
	var err error
	ref := func(index uint16) uint16 {
		if err != nil {
			return 0
		}
		n, e := b.ref(index)
		if e != nil {
			err = e
		}
		return n
	}
	members := func(in []*Member) []*Member {
		var out []*Member
		for _, m := range in {
			nm := &Member{
				AccessFlags:     m.AccessFlags,
				NameIndex:       ref(m.NameIndex),
				DescriptorIndex: ref(m.DescriptorIndex),
			}
			if err == nil {
				nm.Attributes, err = b.attributes(m.Attributes)
			}
			out = append(out, nm)
		}
		return out
	}

	if err := b.narrowRefs(c); err != nil {
		return nil, err
	}
	out := &ClassFile{
		MinorVersion: c.MinorVersion,
		MajorVersion: c.MajorVersion,
		AccessFlags:  c.AccessFlags,
		ThisClass:    ref(c.ThisClass),
		SuperClass:   ref(c.SuperClass),
	}
	for _, i := range c.Interfaces {
		out.Interfaces = append(out.Interfaces, ref(i))
	}
	out.Fields = members(c.Fields)
	out.Methods = members(c.Methods)
	if err == nil {
		out.Attributes, err = b.attributes(c.Attributes)
	}
	if err != nil {
		return nil, err
	}
	out.Pool = b.next
	return out, nil
}

func (b *poolBuilder) attributes(attrs []*Attribute) ([]*Attribute, error) {
	var out []*Attribute
	for _, a := range attrs {
		name, err := b.old.Utf8(a.NameIndex)
		if err != nil {
			return nil, err
		}
		if name == AttrBootstrapMethods {
			data, err := b.bootstrapMethods(a.Data)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue
			}
			nameIndex, err := b.ref(a.NameIndex)
			if err != nil {
				return nil, err
			}
			out = append(out, &Attribute{NameIndex: nameIndex, Data: data})
			continue
		}
		nameIndex, err := b.ref(a.NameIndex)
		if err != nil {
			return nil, err
		}
		data := append([]byte(nil), a.Data...)
		if err := walkAttributeRefs(b.old, name, data, func(off, size int, index uint16) error {
			n, err := b.ref(index)
			if err != nil {
				return err
			}
			if size == 1 {
				if n > 0xff {
					return fmt.Errorf("ldc operand %d: %w", n, errUnremappable)
				}
				data[off] = byte(n)
				return nil
			}
			binary.BigEndian.PutUint16(data[off:], n)
			return nil
		}); err != nil {
			return nil, err
		}
		out = append(out, &Attribute{NameIndex: nameIndex, Data: data})
	}
	return out, nil
}

// narrowRefs copies the constants loaded by ldc before anything else, so
// their new indexes fit the one byte operand.
func (b *poolBuilder) narrowRefs(c *ClassFile) error {
	for _, m := range c.Methods {
		for _, a := range m.Attributes {
			if c.AttributeName(a) != AttrCode {
				continue
			}
			err := walkAttributeRefs(b.old, AttrCode, a.Data, func(off, size int, index uint16) error {
				if size != 1 {
					return nil
				}
				_, err := b.ref(index)
				return err
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// bootstrapMethods rebuilds a BootstrapMethods attribute holding only the
// entries named by copied dynamic constants, in first-use order. It returns
// nil when no entry is used.
func (b *poolBuilder) bootstrapMethods(data []byte) ([]byte, error) {
	r := &reader{buf: data}
	var entries [][]uint16
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		entry := []uint16{r.u2()}
		args := int(r.u2())
		for j := 0; j < args && r.err == nil; j++ {
			entry = append(entry, r.u2())
		}
		entries = append(entries, entry)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", AttrBootstrapMethods, r.err)
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%s: %d trailing bytes", AttrBootstrapMethods, len(data)-r.off)
	}

	// remapping arguments may name further bootstrap methods
	var out [][]uint16
	for i := 0; i < len(b.bootstrapOrder); i++ {
		old := b.bootstrapOrder[i]
		if int(old) >= len(entries) {
			return nil, fmt.Errorf("bootstrap method %d out of range [0,%d)", old, len(entries))
		}
		entry := make([]uint16, len(entries[old]))
		for j, index := range entries[old] {
			n, err := b.ref(index)
			if err != nil {
				return nil, err
			}
			entry[j] = n
		}
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil, nil
	}

	w := &writer{}
	w.u2(uint16(len(out)))
	for _, entry := range out {
		w.u2(entry[0])
		w.u2(uint16(len(entry) - 1))
		for _, arg := range entry[1:] {
			w.u2(arg)
		}
	}
	return w.buf.Bytes(), nil
}
