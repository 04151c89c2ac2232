package java

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

const (
	ConstantUtf8               ConstantTag = 1
	ConstantInteger            ConstantTag = 3
	ConstantFloat              ConstantTag = 4
	ConstantLong               ConstantTag = 5
	ConstantDouble             ConstantTag = 6
	ConstantClass              ConstantTag = 7
	ConstantString             ConstantTag = 8
	ConstantFieldref           ConstantTag = 9
	ConstantMethodref          ConstantTag = 10
	ConstantInterfaceMethodref ConstantTag = 11
	ConstantNameAndType        ConstantTag = 12
	ConstantMethodHandle       ConstantTag = 15
	ConstantMethodType         ConstantTag = 16
	ConstantDynamic            ConstantTag = 17
	ConstantInvokeDynamic      ConstantTag = 18
	ConstantModule             ConstantTag = 19
	ConstantPackage            ConstantTag = 20
)

// Constant is a single constant pool entry. Info holds the raw bytes that
// follow the tag byte (for Utf8 entries this includes the u2 length prefix).
// The unusable slot following a Long or Double has a zero tag.
type Constant struct {
	Tag  ConstantTag
	Info []byte
}

// wide reports whether the constant takes two pool slots.
func (c Constant) wide() bool {
	return c.Tag == ConstantLong || c.Tag == ConstantDouble
}

// refOffsets returns the offsets within Info of u2 values that are
// themselves constant pool indexes.
func (c Constant) refOffsets() []int {
	switch c.Tag {
	case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
		return []int{0}
	case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref, ConstantNameAndType:
		return []int{0, 2}
	case ConstantMethodHandle:
		// u1 reference_kind, u2 reference_index
		return []int{1}
	case ConstantDynamic, ConstantInvokeDynamic:
		// u2 bootstrap_method_attr_index is not a pool index
		return []int{2}
	}
	return nil
}

func infoSize(tag ConstantTag) (int, error) {
	switch tag {
	case ConstantInteger, ConstantFloat, ConstantFieldref, ConstantMethodref,
		ConstantInterfaceMethodref, ConstantNameAndType, ConstantDynamic, ConstantInvokeDynamic:
		return 4, nil
	case ConstantLong, ConstantDouble:
		return 8, nil
	case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
		return 2, nil
	case ConstantMethodHandle:
		return 3, nil
	}
	return 0, fmt.Errorf("unknown constant pool tag %d", tag)
}

// ConstantPool is an indexed constant pool. Slot zero is never used.
type ConstantPool struct {
	entries []Constant
	// utf8 deduplicates Utf8 entries added through the Add* helpers.
	utf8 map[string]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		entries: []Constant{{}},
		utf8:    make(map[string]uint16),
	}
}

// Count returns the constant_pool_count value (number of slots + 1).
func (p *ConstantPool) Count() int {
	return len(p.entries)
}

// Get returns the constant at the given index.
func (p *ConstantPool) Get(index uint16) (Constant, error) {
	if index == 0 || int(index) >= len(p.entries) {
		return Constant{}, fmt.Errorf("constant pool index %d out of range [1,%d)", index, len(p.entries))
	}
	c := p.entries[index]
	if c.Tag == 0 {
		return Constant{}, fmt.Errorf("constant pool index %d is an unusable slot", index)
	}
	return c, nil
}

// Utf8 returns the string value of the Utf8 constant at index.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	c, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != ConstantUtf8 {
		return "", fmt.Errorf("constant pool index %d: want Utf8, got tag %d", index, c.Tag)
	}
	return string(c.Info[2:]), nil
}

// ClassName returns the internal name referenced by the Class constant at
// index.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	c, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != ConstantClass {
		return "", fmt.Errorf("constant pool index %d: want Class, got tag %d", index, c.Tag)
	}
	return p.Utf8(binary.BigEndian.Uint16(c.Info))
}

// Add appends a constant and returns its index.
func (p *ConstantPool) Add(c Constant) (uint16, error) {
	need := 1
	if c.wide() {
		need = 2
	}
	if len(p.entries)+need > math.MaxUint16 {
		return 0, fmt.Errorf("constant pool overflow")
	}
	index := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if c.wide() {
		p.entries = append(p.entries, Constant{})
	}
	if c.Tag == ConstantUtf8 {
		if _, ok := p.utf8[string(c.Info[2:])]; !ok {
			p.utf8[string(c.Info[2:])] = index
		}
	}
	return index, nil
}

// AddUtf8 returns the index of a Utf8 constant for s, adding one if needed.
func (p *ConstantPool) AddUtf8(s string) (uint16, error) {
	if index, ok := p.utf8[s]; ok {
		return index, nil
	}
	if len(s) > math.MaxUint16 {
		return 0, fmt.Errorf("utf8 constant too long (%d bytes)", len(s))
	}
	info := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(info, uint16(len(s)))
	copy(info[2:], s)
	return p.Add(Constant{Tag: ConstantUtf8, Info: info})
}

// AddClass adds a Class constant naming the given internal name.
func (p *ConstantPool) AddClass(internalName string) (uint16, error) {
	return p.addRef(ConstantClass, internalName)
}

// AddString adds a String constant.
func (p *ConstantPool) AddString(s string) (uint16, error) {
	return p.addRef(ConstantString, s)
}

// AddInteger adds an Integer constant.
func (p *ConstantPool) AddInteger(v int32) (uint16, error) {
	info := make([]byte, 4)
	binary.BigEndian.PutUint32(info, uint32(v))
	return p.Add(Constant{Tag: ConstantInteger, Info: info})
}

// AddLong adds a Long constant.
func (p *ConstantPool) AddLong(v int64) (uint16, error) {
	info := make([]byte, 8)
	binary.BigEndian.PutUint64(info, uint64(v))
	return p.Add(Constant{Tag: ConstantLong, Info: info})
}

func (p *ConstantPool) addRef(tag ConstantTag, s string) (uint16, error) {
	utf8, err := p.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	info := make([]byte, 2)
	binary.BigEndian.PutUint16(info, utf8)
	return p.Add(Constant{Tag: tag, Info: info})
}

func readConstantPool(r *reader) (*ConstantPool, error) {
	count := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, fmt.Errorf("constant_pool_count is zero")
	}
	pool := NewConstantPool()
	for i := 1; i < int(count); i++ {
		tag := ConstantTag(r.u1())
		var info []byte
		if tag == ConstantUtf8 {
			n := r.u2()
			body := r.bytes(int(n))
			info = make([]byte, 2+len(body))
			binary.BigEndian.PutUint16(info, n)
			copy(info[2:], body)
		} else {
			size, err := infoSize(tag)
			if err != nil {
				return nil, fmt.Errorf("constant pool index %d: %w", i, err)
			}
			info = append([]byte(nil), r.bytes(size)...)
		}
		if r.err != nil {
			return nil, fmt.Errorf("constant pool index %d: %w", i, r.err)
		}
		c := Constant{Tag: tag, Info: info}
		if _, err := pool.Add(c); err != nil {
			return nil, err
		}
		if c.wide() {
			i++
		}
	}
	if pool.Count() != int(count) {
		return nil, fmt.Errorf("constant pool size mismatch: declared %d, read %d", count, pool.Count())
	}
	return pool, nil
}

func (p *ConstantPool) write(w *writer) {
	w.u2(uint16(len(p.entries)))
	for _, c := range p.entries[1:] {
		if c.Tag == 0 {
			continue
		}
		w.u1(uint8(c.Tag))
		w.raw(c.Info)
	}
}

// poolBuilder copies the reachable subset of a pool into a fresh pool in
// first-reference order.
type poolBuilder struct {
	old    *ConstantPool
	next   *ConstantPool
	remap  map[uint16]uint16
	active map[uint16]bool
	// bootstrap renumbers the bootstrap methods named by copied dynamic
	// constants; bootstrapOrder lists the old indexes by new index.
	bootstrap      map[uint16]uint16
	bootstrapOrder []uint16
}

func newPoolBuilder(old *ConstantPool) *poolBuilder {
	return &poolBuilder{
		old:       old,
		next:      NewConstantPool(),
		remap:     make(map[uint16]uint16),
		active:    make(map[uint16]bool),
		bootstrap: make(map[uint16]uint16),
	}
}

func (b *poolBuilder) bootstrapIndex(old uint16) uint16 {
	if n, ok := b.bootstrap[old]; ok {
		return n
	}
	n := uint16(len(b.bootstrapOrder))
	b.bootstrap[old] = n
	b.bootstrapOrder = append(b.bootstrapOrder, old)
	return n
}

// ref returns the new index for old index, copying the constant (and its
// dependencies) on first use. Zero maps to zero.
func (b *poolBuilder) ref(index uint16) (uint16, error) {
	if index == 0 {
		return 0, nil
	}
	if n, ok := b.remap[index]; ok {
		return n, nil
	}
	if b.active[index] {
		return 0, fmt.Errorf("constant pool index %d refers to itself", index)
	}
	c, err := b.old.Get(index)
	if err != nil {
		return 0, err
	}
	b.active[index] = true
	info := append([]byte(nil), c.Info...)
	for _, off := range c.refOffsets() {
		n, err := b.ref(binary.BigEndian.Uint16(info[off:]))
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint16(info[off:], n)
	}
	delete(b.active, index)
	if c.Tag == ConstantDynamic || c.Tag == ConstantInvokeDynamic {
		binary.BigEndian.PutUint16(info, b.bootstrapIndex(binary.BigEndian.Uint16(info)))
	}
	var n uint16
	if c.Tag == ConstantUtf8 {
		n, err = b.next.AddUtf8(string(info[2:]))
	} else {
		n, err = b.next.Add(Constant{Tag: c.Tag, Info: info})
	}
	if err != nil {
		return 0, err
	}
	b.remap[index] = n
	return n, nil
}
