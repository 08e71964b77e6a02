package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUDPTransportRoundTrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0", Config{})
	assert.NoError(t, err)
	defer a.Close()

	b, err := Listen("127.0.0.1:0", Config{})
	assert.NoError(t, err)
	defer b.Close()

	msg := []byte("hello transport")
	n, err := a.WriteTo(msg, b.LocalAddr())
	assert.NoError(t, err)
	assert.Equal(t, len(msg), n)

	buf := make([]byte, 1500)
	n, addr, err := b.ReadFrom(buf)
	assert.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
	assert.Equal(t, a.LocalAddr().String(), addr.String())
}

func TestDialEphemeralPort(t *testing.T) {
	c, err := Dial(Config{})
	assert.NoError(t, err)
	defer c.Close()
	assert.NotEqual(t, "0.0.0.0:0", c.LocalAddr().String())
}
