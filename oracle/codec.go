// Package oracle is the serialization collaborator used by stream and
// socket: it registers application message types under a stable numeric
// TypeID and knows how to encode/decode a registered type to and from a
// byte stream. Neither the stream nor the socket package cares how
// encoding actually happens; they only ever see the Oracle interface.
//
// The reflection-based codec below writes integers little-endian and
// fixed-width, length-prefixes strings and slices, encodes booleans as a
// single byte, and lets a type opt out of reflection by implementing
// Marshaler/Unmarshaler directly.
package oracle

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
)

// maxSliceLen bounds how large a single length-prefixed slice or string is
// allowed to be, so a corrupt or adversarial frame can't make Decode try to
// allocate an enormous buffer.
const maxSliceLen = 1 << 20

// Marshaler lets a type opt out of the default reflection-based encoding by
// writing itself directly to the stream.
type Marshaler interface {
	MarshalMessage(io.Writer) error
}

// Unmarshaler is the decode-side counterpart of Marshaler.
type Unmarshaler interface {
	UnmarshalMessage(io.Reader) error
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	var n int
	n, e.err = e.w.Write(p)
	if n != len(p) && e.err == nil {
		e.err = io.ErrShortWrite
	}
	return n, e.err
}

func (e *encoder) writeByte(b byte) error {
	e.buf[0] = b
	e.Write(e.buf[:1])
	return e.err
}

func (e *encoder) writeBool(b bool) error {
	if b {
		return e.writeByte(1)
	}
	return e.writeByte(0)
}

func (e *encoder) writeUint64(u uint64) error {
	if e.err != nil {
		return e.err
	}
	binary.LittleEndian.PutUint64(e.buf[:8], u)
	e.Write(e.buf[:8])
	return e.err
}

func (e *encoder) writePrefixed(p []byte) error {
	e.writeUint64(uint64(len(p)))
	e.Write(p)
	return e.err
}

func (e *encoder) encode(val reflect.Value) error {
	if e.err != nil {
		return e.err
	}
	if val.CanInterface() {
		if m, ok := val.Interface().(Marshaler); ok {
			return m.MarshalMessage(e.w)
		}
	}

	switch val.Kind() {
	case reflect.Ptr:
		if err := e.writeBool(!val.IsNil()); err != nil {
			return err
		}
		if !val.IsNil() {
			return e.encode(val.Elem())
		}
		return nil
	case reflect.Bool:
		return e.writeBool(val.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.writeUint64(uint64(val.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.writeUint64(val.Uint())
	case reflect.String:
		return e.writePrefixed([]byte(val.String()))
	case reflect.Slice:
		if err := e.writeUint64(uint64(val.Len())); err != nil {
			return err
		}
		if val.Len() == 0 {
			return nil
		}
		fallthrough
	case reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			if val.CanAddr() {
				_, err := e.Write(val.Slice(0, val.Len()).Bytes())
				return err
			}
			tmp := reflect.MakeSlice(reflect.SliceOf(val.Type().Elem()), val.Len(), val.Len())
			reflect.Copy(tmp, val)
			_, err := e.Write(tmp.Bytes())
			return err
		}
		for i := 0; i < val.Len(); i++ {
			if err := e.encode(val.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if err := e.encode(val.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("oracle: cannot encode type %s", val.Type())
}

type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
	n   int
}

func (d *decoder) readFull(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	d.n += n
	if err != nil {
		d.err = err
	}
}

func (d *decoder) nextUint64() uint64 {
	d.readFull(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(d.buf[:8])
}

func (d *decoder) nextBool() bool {
	d.readFull(d.buf[:1])
	return d.buf[0] != 0
}

func (d *decoder) nextPrefixed() []byte {
	n := d.nextUint64()
	if n > maxSliceLen {
		d.err = fmt.Errorf("oracle: length prefix %d exceeds %d byte limit", n, maxSliceLen)
		return nil
	}
	b := make([]byte, n)
	d.readFull(b)
	return b
}

func (d *decoder) decode(val reflect.Value) {
	if d.err != nil {
		return
	}
	if val.CanAddr() && val.Addr().CanInterface() {
		if u, ok := val.Addr().Interface().(Unmarshaler); ok {
			if err := u.UnmarshalMessage(d.r); err != nil {
				d.err = err
			}
			return
		}
	}

	switch val.Kind() {
	case reflect.Ptr:
		if !d.nextBool() {
			return
		}
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		d.decode(val.Elem())
	case reflect.Bool:
		val.SetBool(d.nextBool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val.SetInt(int64(d.nextUint64()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val.SetUint(d.nextUint64())
	case reflect.String:
		val.SetString(string(d.nextPrefixed()))
	case reflect.Slice:
		n := d.nextUint64()
		if n > maxSliceLen {
			d.err = fmt.Errorf("oracle: slice length %d exceeds %d element limit", n, maxSliceLen)
			return
		}
		if n == 0 {
			return
		}
		val.Set(reflect.MakeSlice(val.Type(), int(n), int(n)))
		fallthrough
	case reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			d.readFull(val.Slice(0, val.Len()).Bytes())
			return
		}
		for i := 0; i < val.Len(); i++ {
			d.decode(val.Index(i))
		}
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			d.decode(val.Field(i))
		}
	default:
		d.err = fmt.Errorf("oracle: cannot decode type %s", val.Type())
	}
}
