package java

import (
	"fmt"
)

// Opcodes with constant pool operands or variable length.
const (
	opLdc             = 0x12
	opLdcW            = 0x13
	opLdc2W           = 0x14
	opGetstatic       = 0xb2
	opInvokestatic    = 0xb8
	opInvokeinterface = 0xb9
	opInvokedynamic   = 0xba
	opNew             = 0xbb
	opAnewarray       = 0xbd
	opCheckcast       = 0xc0
	opInstanceof      = 0xc1
	opWide            = 0xc4
	opMultianewarray  = 0xc5
	opIinc            = 0x84
	opTableswitch     = 0xaa
	opLookupswitch    = 0xab
)

// operandSize returns the operand length of a fixed length instruction that
// holds no constant pool reference.
func operandSize(op int) (int, bool) {
	switch {
	case op <= 0x0f:
		return 0, true
	case op == 0x10: // bipush
		return 1, true
	case op == 0x11: // sipush
		return 2, true
	case op >= 0x15 && op <= 0x19: // loads
		return 1, true
	case op >= 0x1a && op <= 0x35:
		return 0, true
	case op >= 0x36 && op <= 0x3a: // stores
		return 1, true
	case op >= 0x3b && op <= 0x83:
		return 0, true
	case op == opIinc:
		return 2, true
	case op >= 0x85 && op <= 0x98:
		return 0, true
	case op >= 0x99 && op <= 0xa8: // branches, goto, jsr
		return 2, true
	case op == 0xa9: // ret
		return 1, true
	case op >= 0xac && op <= 0xb1: // returns
		return 0, true
	case op == 0xbc: // newarray
		return 1, true
	case op == 0xbe, op == 0xbf, op == 0xc2, op == 0xc3:
		return 0, true
	case op == 0xc6, op == 0xc7: // ifnull, ifnonnull
		return 2, true
	case op == 0xc8, op == 0xc9: // goto_w, jsr_w
		return 4, true
	}
	return 0, false
}

// code walks the instructions of a Code attribute.
func (w *refWalker) code(length int) {
	if w.err != nil {
		return
	}
	if length < 0 || w.off+length > w.end {
		w.fail(ErrTruncated)
		return
	}
	start, end := w.off, w.off+length
	outer := w.end
	w.end = end
	for w.off < end && w.err == nil {
		pc := w.off - start
		switch op := w.u1(); {
		case op == opLdc:
			w.ref1()
		case op == opLdcW, op == opLdc2W,
			op >= opGetstatic && op <= opInvokestatic,
			op == opNew, op == opAnewarray, op == opCheckcast, op == opInstanceof:
			w.ref()
		case op == opInvokeinterface, op == opInvokedynamic:
			w.ref()
			w.skip(2)
		case op == opMultianewarray:
			w.ref()
			w.skip(1)
		case op == opTableswitch:
			w.skip((4 - (pc+1)%4) % 4)
			w.skip(4) // default
			low, high := int32(w.u4()), int32(w.u4())
			if w.err == nil && high < low {
				w.fail(fmt.Errorf("tableswitch at %d: high %d < low %d", pc, high, low))
				break
			}
			w.skip(4 * (int(high) - int(low) + 1))
		case op == opLookupswitch:
			w.skip((4 - (pc+1)%4) % 4)
			w.skip(4) // default
			w.skip(8 * w.u4())
		case op == opWide:
			if w.u1() == opIinc {
				w.skip(4)
			} else {
				w.skip(2)
			}
		default:
			n, ok := operandSize(op)
			if !ok {
				if w.err == nil {
					w.fail(fmt.Errorf("unknown opcode 0x%02x at %d", op, pc))
				}
				break
			}
			w.skip(n)
		}
	}
	if w.err == nil && w.off != end {
		w.fail(fmt.Errorf("instruction overruns code length %d", length))
	}
	w.end = outer
}

func (w *refWalker) stackMapTable() {
	n := w.u2()
	for i := 0; i < n && w.err == nil; i++ {
		switch frame := w.u1(); {
		case frame <= 63:
		case frame <= 127:
			w.verificationType()
		case frame == 247:
			w.skip(2)
			w.verificationType()
		case frame >= 248 && frame <= 251:
			w.skip(2)
		case frame >= 252 && frame <= 254:
			w.skip(2)
			for j := 0; j < frame-251; j++ {
				w.verificationType()
			}
		case frame == 255:
			w.skip(2)
			for range 2 { // locals, then stack
				m := w.u2()
				for j := 0; j < m && w.err == nil; j++ {
					w.verificationType()
				}
			}
		default:
			if w.err == nil {
				w.fail(fmt.Errorf("reserved stack map frame type %d", frame))
			}
		}
	}
}

func (w *refWalker) verificationType() {
	switch tag := w.u1(); tag {
	case 7: // Object_variable_info
		w.ref()
	case 8: // Uninitialized_variable_info
		w.skip(2)
	default:
		if tag > 8 && w.err == nil {
			w.fail(fmt.Errorf("unknown verification type %d", tag))
		}
	}
}

var codeDebugAttributes = attributeSet(
	AttrLineNumberTable,
	AttrLocalVariableTable,
	AttrLocalVariableTypeTable,
)

// stripCodeDebug returns a copy of a Code attribute without its line number
// and local variable tables.
func (c *ClassFile) stripCodeDebug(a *Attribute) (*Attribute, error) {
	r := &reader{buf: a.Data}
	maxStack, maxLocals := r.u2(), r.u2()
	code := r.bytes(int(r.u4()))
	handlers := r.bytes(8 * int(r.u2()))
	attrs := readAttributes(r)
	if r.err != nil {
		return nil, fmt.Errorf("Code: %w", r.err)
	}
	if r.off != len(a.Data) {
		return nil, fmt.Errorf("Code: %d trailing bytes", len(a.Data)-r.off)
	}

	w := &writer{}
	w.u2(maxStack)
	w.u2(maxLocals)
	w.u4(uint32(len(code)))
	w.raw(code)
	w.u2(uint16(len(handlers) / 8))
	w.raw(handlers)
	var kept []*Attribute
	for _, attr := range attrs {
		if !codeDebugAttributes[c.AttributeName(attr)] {
			kept = append(kept, attr)
		}
	}
	w.u2(uint16(len(kept)))
	for _, attr := range kept {
		w.u2(attr.NameIndex)
		w.u4(uint32(len(attr.Data)))
		w.raw(attr.Data)
	}
	return &Attribute{NameIndex: a.NameIndex, Data: w.buf.Bytes()}, nil
}
