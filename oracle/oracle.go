package oracle

import (
	"bytes"
	"io"
	"reflect"
	"sync"

	"github.com/NebulousLabs/errors"
)

// TypeID is the stable numeric identifier a registered application message
// type is encoded/decoded under. It is written on the wire ahead of every
// Oracle-encoded payload, which is what lets a GENERAL datagram or a stream
// item self-describe its own type.
type TypeID uint64

// Message is an application value the Oracle knows how to serialize. The
// registry itself places no constraints on it beyond being a concrete,
// addressable Go type (struct, not interface): the handler registry stays a
// dynamic table keyed by an integer id rather than an exhaustive variant
// match, since application message types are open-ended.
type Message interface{}

var (
	// ErrUnknownType is returned by Decode when the wire TypeID has no
	// registered Go type, and by Encode/TypeOf when the value's Go type was
	// never registered.
	ErrUnknownType = errors.New("oracle: unrecognized message type")
	// ErrDuplicateType is returned by Register when either the TypeID or the
	// sample's Go type is already registered. This is a programmer error
	// and is surfaced synchronously rather than logged.
	ErrDuplicateType = errors.New("oracle: type already registered")
)

// Oracle is the serialization collaborator stream and socket depend on:
// something that can encode/decode a registered Message to/from a byte
// stream and report a stable TypeID for it. Stream and Socket only ever
// depend on this interface.
type Oracle interface {
	// Register associates id with the Go type of sample. Re-registering
	// either id or sample's type is an error.
	Register(id TypeID, sample Message) error

	// TypeOf reports the TypeID a previously-registered message was
	// registered under.
	TypeOf(msg Message) (TypeID, error)

	// Encode writes msg's TypeID followed by its encoded payload to w. This
	// is what the wire format calls "Oracle-encoded": self-describing, so
	// Decode never needs out-of-band knowledge of what's coming.
	Encode(w io.Writer, msg Message) error

	// Decode reads one TypeID and its payload from r and returns the
	// decoded message as a pointer to a freshly allocated value of the
	// registered type, along with its TypeID.
	Decode(r io.Reader) (TypeID, Message, error)
}

// Registry is the default, reflection-based Oracle implementation (see
// codec.go). Call sites that need a different wire format (protobuf,
// JSON, ...) can supply their own Oracle implementation; Registry is
// simply the one this module ships so the transport is usable out of the
// box.
type Registry struct {
	mu    sync.RWMutex
	types map[TypeID]reflect.Type
	ids   map[reflect.Type]TypeID
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[TypeID]reflect.Type),
		ids:   make(map[reflect.Type]TypeID),
	}
}

// Register implements Oracle.
func (r *Registry) Register(id TypeID, sample Message) error {
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[id]; ok {
		return errors.Extend(ErrDuplicateType, errors.New("TypeID already in use"))
	}
	if _, ok := r.ids[t]; ok {
		return errors.Extend(ErrDuplicateType, errors.New("Go type already registered under a different TypeID"))
	}
	r.types[id] = t
	r.ids[t] = id
	return nil
}

// TypeOf implements Oracle.
func (r *Registry) TypeOf(msg Message) (TypeID, error) {
	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[t]
	if !ok {
		return 0, ErrUnknownType
	}
	return id, nil
}

// Encode implements Oracle.
func (r *Registry) Encode(w io.Writer, msg Message) error {
	id, err := r.TypeOf(msg)
	if err != nil {
		return err
	}
	e := &encoder{w: w}
	if err := e.writeUint64(uint64(id)); err != nil {
		return err
	}
	return e.encode(reflect.ValueOf(msg))
}

// Decode implements Oracle.
func (r *Registry) Decode(reader io.Reader) (TypeID, Message, error) {
	d := &decoder{r: reader}
	id := TypeID(d.nextUint64())
	if d.err != nil {
		return 0, nil, d.err
	}

	r.mu.RLock()
	t, ok := r.types[id]
	r.mu.RUnlock()
	if !ok {
		return id, nil, errors.Extend(ErrUnknownType, errors.New("typeID not registered"))
	}

	ptr := reflect.New(t)
	d.decode(ptr.Elem())
	if d.err != nil {
		return id, nil, d.err
	}
	return id, ptr.Interface(), nil
}

// EncodeBytes is a convenience wrapper returning the encoded bytes directly,
// used by callers (such as Socket.Send) that need the payload before it can
// be stitched into a larger datagram.
func EncodeBytes(o Oracle, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
