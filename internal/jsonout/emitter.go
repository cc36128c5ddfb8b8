package jsonout

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"
)

var (
	// ErrSyntax is reported when a token is emitted where JSON does not allow it,
	// e.g. an object value without a preceding Key or an unbalanced End call.
	ErrSyntax = errors.New("jsonout: token not valid at this position")
	// ErrUnsupportedValue is reported by Value for types it cannot represent.
	ErrUnsupportedValue = errors.New("jsonout: unsupported value type")
)

const hexDigits = "0123456789abcdef"

// CharSink accepts JSON text one character at a time. Stream is the usual implementation.
type CharSink interface {
	Put(c byte) error
}

// Field is a single member of an ordered JSON object.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered JSON object; keys are emitted in slice order.
type Fields []Field

type frameKind uint8

const (
	inObject frameKind = iota + 1
	inArray
)

type frame struct {
	kind  frameKind
	n     int
	keyed bool
}

// Emitter writes JSON tokens to a CharSink character by character, without
// building the document in memory first.
//
// Errors are sticky: after the first failure, from the sink or from misuse, every
// call is a no-op and Err reports that failure. Sink errors are reported exactly
// as the sink returned them.
//
// An Emitter is not safe for concurrent use.
type Emitter[C CharSink] struct {
	out     C
	stack   []frame
	err     error
	scratch [64]byte

	// set once a top-level value has started on the current line
	lineUsed bool
}

// NewEmitter returns an Emitter writing to out.
func NewEmitter[C CharSink](out C) *Emitter[C] {
	return &Emitter[C]{out: out, stack: make([]frame, 0, 8)}
}

// Err returns the first error encountered, or nil.
func (e *Emitter[C]) Err() error { return e.err }

// BeginObject opens a JSON object.
func (e *Emitter[C]) BeginObject() {
	if !e.beforeValue() {
		return
	}

	e.stack = append(e.stack, frame{kind: inObject})
	e.put('{')
}

// EndObject closes the innermost object.
func (e *Emitter[C]) EndObject() {
	if e.err != nil {
		return
	}

	top := e.top()
	if top == nil || top.kind != inObject || top.keyed {
		e.err = ErrSyntax
		return
	}

	e.stack = e.stack[:len(e.stack)-1]
	e.put('}')
}

// BeginArray opens a JSON array.
func (e *Emitter[C]) BeginArray() {
	if !e.beforeValue() {
		return
	}

	e.stack = append(e.stack, frame{kind: inArray})
	e.put('[')
}

// EndArray closes the innermost array.
func (e *Emitter[C]) EndArray() {
	if e.err != nil {
		return
	}

	top := e.top()
	if top == nil || top.kind != inArray {
		e.err = ErrSyntax
		return
	}

	e.stack = e.stack[:len(e.stack)-1]
	e.put(']')
}

// Key emits an object member name. The next token must be its value.
func (e *Emitter[C]) Key(k string) {
	if e.err != nil {
		return
	}

	top := e.top()
	if top == nil || top.kind != inObject || top.keyed {
		e.err = ErrSyntax
		return
	}

	if top.n > 0 {
		e.put(',')
	}

	e.quote(k)
	e.put(':')
	top.keyed = true
}

// Newline terminates a top-level value, producing JSON lines output. A second
// top-level value without a Newline in between is a syntax error.
func (e *Emitter[C]) Newline() {
	if e.err != nil {
		return
	}

	if len(e.stack) != 0 {
		e.err = ErrSyntax
		return
	}

	e.lineUsed = false
	e.put('\n')
}

// String emits s as a quoted, escaped JSON string.
func (e *Emitter[C]) String(s string) {
	if e.beforeValue() {
		e.quote(s)
	}
}

// Bytes emits b as a standard base64 JSON string.
func (e *Emitter[C]) Bytes(b []byte) {
	if !e.beforeValue() {
		return
	}

	// 48 input bytes encode to exactly 64 output bytes without padding.
	const chunk = 48

	e.put('"')

	for len(b) > 0 && e.err == nil {
		n := min(len(b), chunk)
		enc := e.scratch[:base64.StdEncoding.EncodedLen(n)]
		base64.StdEncoding.Encode(enc, b[:n])
		e.putBytes(enc)
		b = b[n:]
	}

	e.put('"')
}

// Hex emits b as a lowercase hexadecimal JSON string.
func (e *Emitter[C]) Hex(b []byte) {
	if !e.beforeValue() {
		return
	}

	e.put('"')

	for _, x := range b {
		e.put(hexDigits[x>>4])
		e.put(hexDigits[x&0x0f])
	}

	e.put('"')
}

// Int emits a signed integer.
func (e *Emitter[C]) Int(v int64) {
	if e.beforeValue() {
		e.putBytes(strconv.AppendInt(e.scratch[:0], v, 10))
	}
}

// Uint emits an unsigned integer.
func (e *Emitter[C]) Uint(v uint64) {
	if e.beforeValue() {
		e.putBytes(strconv.AppendUint(e.scratch[:0], v, 10))
	}
}

// Float emits a float64 in its shortest form. NaN and infinities have no JSON
// literal and are emitted as the strings "NaN", "Infinity" and "-Infinity".
func (e *Emitter[C]) Float(f float64) { e.float(f, 64) }

// Bool emits true or false.
func (e *Emitter[C]) Bool(v bool) {
	if !e.beforeValue() {
		return
	}

	if v {
		e.putString("true")
	} else {
		e.putString("false")
	}
}

// Null emits null.
func (e *Emitter[C]) Null() {
	if e.beforeValue() {
		e.putString("null")
	}
}

// Value emits v according to its dynamic type. Supported are nil, strings,
// booleans, sized and unsized integers, floats, []byte (base64), []any, Fields
// and map[string]any (keys sorted).
func (e *Emitter[C]) Value(v any) {
	if e.err != nil {
		return
	}

	switch x := v.(type) {
	case nil:
		e.Null()
	case string:
		e.String(x)
	case bool:
		e.Bool(x)
	case int:
		e.Int(int64(x))
	case int32:
		e.Int(int64(x))
	case int64:
		e.Int(x)
	case uint:
		e.Uint(uint64(x))
	case uint32:
		e.Uint(uint64(x))
	case uint64:
		e.Uint(x)
	case float32:
		e.float(float64(x), 32)
	case float64:
		e.Float(x)
	case []byte:
		e.Bytes(x)
	case []any:
		e.BeginArray()
		for _, el := range x {
			e.Value(el)
		}
		e.EndArray()
	case Fields:
		e.BeginObject()
		for _, f := range x {
			e.Key(f.Key)
			e.Value(f.Value)
		}
		e.EndObject()
	case map[string]any:
		e.BeginObject()
		for _, k := range slices.Sorted(maps.Keys(x)) {
			e.Key(k)
			e.Value(x[k])
		}
		e.EndObject()
	default:
		e.err = fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func (e *Emitter[C]) top() *frame {
	if len(e.stack) == 0 {
		return nil
	}

	return &e.stack[len(e.stack)-1]
}

// beforeValue writes any separator a value needs at the current position and
// reports whether the value may follow.
func (e *Emitter[C]) beforeValue() bool {
	if e.err != nil {
		return false
	}

	top := e.top()
	if top == nil {
		// One top-level value per line.
		if e.lineUsed {
			e.err = ErrSyntax
			return false
		}

		e.lineUsed = true

		return true
	}

	switch top.kind {
	case inObject:
		if !top.keyed {
			e.err = ErrSyntax
			return false
		}

		top.keyed = false
	case inArray:
		if top.n > 0 {
			e.put(',')
		}
	}

	top.n++

	return e.err == nil
}

func (e *Emitter[C]) float(f float64, bits int) {
	if !e.beforeValue() {
		return
	}

	switch {
	case math.IsNaN(f):
		e.putString(`"NaN"`)
		return
	case math.IsInf(f, 1):
		e.putString(`"Infinity"`)
		return
	case math.IsInf(f, -1):
		e.putString(`"-Infinity"`)
		return
	}

	// Same format choice as encoding/json.
	format := byte('f')
	if abs := math.Abs(f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}

	b := strconv.AppendFloat(e.scratch[:0], f, format, -1, bits)
	if format == 'e' {
		// e-09 -> e-9
		if n := len(b); n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}

	e.putBytes(b)
}

func (e *Emitter[C]) quote(s string) {
	e.put('"')

	for i := 0; i < len(s) && e.err == nil; {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				e.put('\\')
				e.put(c)
			case c == '\n':
				e.putString(`\n`)
			case c == '\r':
				e.putString(`\r`)
			case c == '\t':
				e.putString(`\t`)
			case c == '\b':
				e.putString(`\b`)
			case c == '\f':
				e.putString(`\f`)
			case c < 0x20:
				e.putString(`\u00`)
				e.put(hexDigits[c>>4])
				e.put(hexDigits[c&0x0f])
			default:
				e.put(c)
			}

			i++

			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])

		switch {
		case r == utf8.RuneError && size == 1:
			e.putString(`\ufffd`)
		case r == '\u2028' || r == '\u2029':
			e.putString(`\u202`)
			e.put(hexDigits[r&0x0f])
		default:
			e.putString(s[i : i+size])
		}

		i += size
	}

	e.put('"')
}

func (e *Emitter[C]) put(c byte) {
	if e.err == nil {
		e.err = e.out.Put(c)
	}
}

func (e *Emitter[C]) putString(s string) {
	for i := 0; i < len(s) && e.err == nil; i++ {
		e.err = e.out.Put(s[i])
	}
}

func (e *Emitter[C]) putBytes(b []byte) {
	for i := 0; i < len(b) && e.err == nil; i++ {
		e.err = e.out.Put(b[i])
	}
}
