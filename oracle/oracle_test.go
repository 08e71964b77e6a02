package oracle

import (
	"bytes"
	"testing"

	"github.com/NebulousLabs/errors"
	"github.com/stretchr/testify/assert"
)

type pingMessage struct {
	Nonce uint64
	Note  string
}

type pongMessage struct {
	Nonce uint64
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(1, pingMessage{}))
	assert.NoError(t, r.Register(2, pongMessage{}))

	msg := pingMessage{Nonce: 42, Note: "hello"}
	var buf bytes.Buffer
	assert.NoError(t, r.Encode(&buf, msg))

	id, decoded, err := r.Decode(&buf)
	assert.NoError(t, err)
	assert.Equal(t, TypeID(1), id)
	assert.Equal(t, &msg, decoded)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(1, pingMessage{}))

	err := r.Register(1, pongMessage{})
	assert.True(t, errors.Contains(err, ErrDuplicateType))

	err = r.Register(2, pingMessage{})
	assert.True(t, errors.Contains(err, ErrDuplicateType))
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.TypeOf(pingMessage{})
	assert.True(t, errors.Contains(err, ErrUnknownType))

	var buf bytes.Buffer
	// TypeID 99 was never registered.
	buf.Write([]byte{99, 0, 0, 0, 0, 0, 0, 0})
	_, _, err = r.Decode(&buf)
	assert.True(t, errors.Contains(err, ErrUnknownType))
}

func TestRegistryMultipleMessages(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(1, pingMessage{}))
	assert.NoError(t, r.Register(2, pongMessage{}))

	var buf bytes.Buffer
	assert.NoError(t, r.Encode(&buf, pingMessage{Nonce: 1, Note: "a"}))
	assert.NoError(t, r.Encode(&buf, pongMessage{Nonce: 2}))

	id1, m1, err := r.Decode(&buf)
	assert.NoError(t, err)
	assert.Equal(t, TypeID(1), id1)
	assert.Equal(t, &pingMessage{Nonce: 1, Note: "a"}, m1)

	id2, m2, err := r.Decode(&buf)
	assert.NoError(t, err)
	assert.Equal(t, TypeID(2), id2)
	assert.Equal(t, &pongMessage{Nonce: 2}, m2)
}
