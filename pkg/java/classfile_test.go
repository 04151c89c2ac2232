package java

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func buildPair(t *testing.T) []byte {
	t.Helper()
	pool := NewConstantPool()
	must := func(index uint16, err error) uint16 {
		if err != nil {
			t.Fatal(err)
		}
		return index
	}
	c := &ClassFile{
		MajorVersion: 61,
		Pool:         pool,
		AccessFlags:  AccPublic,
		ThisClass:    must(pool.AddClass("com/example/Pair")),
		SuperClass:   must(pool.AddClass("java/lang/Object")),
	}
	c.Interfaces = []uint16{must(pool.AddClass("java/io/Serializable"))}
	must(pool.AddLong(42))
	c.Fields = []*Member{{
		AccessFlags:     AccPublic,
		NameIndex:       must(pool.AddUtf8("left")),
		DescriptorIndex: must(pool.AddUtf8("Ljava/lang/Object;")),
	}}
	c.Attributes = []*Attribute{{
		NameIndex: must(pool.AddUtf8(AttrSourceFile)),
		Data:      []byte{0, byte(must(pool.AddUtf8("Pair.java")))},
	}}
	return c.Bytes()
}

func TestParseRoundTrip(t *testing.T) {
	data := buildPair(t)
	c, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Name(); got != "com/example/Pair" {
		t.Errorf("Name: want com/example/Pair, got %s", got)
	}
	if got := c.SuperName(); got != "java/lang/Object" {
		t.Errorf("SuperName: want java/lang/Object, got %s", got)
	}
	if diff := cmp.Diff([]string{"java/io/Serializable"}, c.InterfaceNames()); diff != "" {
		t.Errorf("InterfaceNames (-want +got):\n%s", diff)
	}
	if !bytes.Equal(data, c.Bytes()) {
		t.Error("Bytes() does not reproduce the parsed input")
	}
}

func TestParseErrors(t *testing.T) {
	valid := buildPair(t)
	for name, tc := range map[string]struct {
		data []byte
		want error
	}{
		"empty": {
			data: nil,
			want: ErrTruncated,
		},
		"truncated": {
			data: valid[:len(valid)-3],
			want: ErrTruncated,
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.data)
			if !errors.Is(err, tc.want) {
				t.Errorf("want %v, got %v", tc.want, err)
			}
		})
	}

	for name, data := range map[string][]byte{
		"bad magic":      append([]byte{0xCA, 0xFE, 0xBA, 0xBF}, valid[4:]...),
		"trailing bytes": append(append([]byte(nil), valid...), 0),
		"text":           []byte("hello"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(data); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestConstantPoolWideEntries(t *testing.T) {
	pool := NewConstantPool()
	long, err := pool.AddLong(1)
	if err != nil {
		t.Fatal(err)
	}
	next, err := pool.AddUtf8("after")
	if err != nil {
		t.Fatal(err)
	}
	if long != 1 || next != 3 {
		t.Errorf("want indexes 1 and 3, got %d and %d", long, next)
	}
	if _, err := pool.Get(2); err == nil {
		t.Error("slot following a long must be unusable")
	}
	if got, err := pool.Utf8(next); err != nil || got != "after" {
		t.Errorf("Utf8(%d) = %q, %v", next, got, err)
	}
}

func TestPoolBuilderFirstReferenceOrder(t *testing.T) {
	old := NewConstantPool()
	unused, _ := old.AddUtf8("unused")
	bar, _ := old.AddClass("Bar")
	foo, _ := old.AddClass("Foo")

	b := newPoolBuilder(old)
	newFoo, err := b.ref(foo)
	if err != nil {
		t.Fatal(err)
	}
	newBar, err := b.ref(bar)
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := b.ref(foo); again != newFoo {
		t.Errorf("ref is not stable: %d != %d", again, newFoo)
	}
	// Utf8 "Foo" (1), Class Foo (2), Utf8 "Bar" (3), Class Bar (4)
	if newFoo != 2 || newBar != 4 {
		t.Errorf("want Foo=2 Bar=4, got Foo=%d Bar=%d", newFoo, newBar)
	}
	if b.next.Count() != 5 {
		t.Errorf("want 4 entries, got %d", b.next.Count()-1)
	}
	if _, ok := b.remap[unused]; ok {
		t.Error("unused constant was copied")
	}
}
