package socket

import (
	"log"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/persist"
	"github.com/pSapien/udp/stream"
	"github.com/stretchr/testify/assert"
)

type joinRequest struct {
	Name string
}

type chatLine struct {
	Body string
}

func newTestOracle(t *testing.T) oracle.Oracle {
	r := oracle.NewRegistry()
	assert.NoError(t, r.Register(1, joinRequest{}))
	assert.NoError(t, r.Register(2, chatLine{}))
	return r
}

func testLogger() *persist.Logger {
	return persist.NewLogger(log.New(os.Stderr, "", log.Ltime))
}

// newTestingSocket returns a Socket ready to use in a testing environment.
func newTestingSocket(t *testing.T, o oracle.Oracle, cfg Config) *Socket {
	if testing.Short() {
		t.Skip("newTestingSocket called during short test")
	}
	return New(o, cfg, testLogger())
}

// events is a concurrency-safe recorder for the handler callbacks a test
// registers against a Socket.
type events struct {
	mu     sync.Mutex
	opens  []string
	closes []string
	chats  []string
}

func (e *events) recordOpen(from net.Addr) {
	e.mu.Lock()
	e.opens = append(e.opens, from.String())
	e.mu.Unlock()
}

func (e *events) recordClose(from net.Addr) {
	e.mu.Lock()
	e.closes = append(e.closes, from.String())
	e.mu.Unlock()
}

func (e *events) recordChat(body string) {
	e.mu.Lock()
	e.chats = append(e.chats, body)
	e.mu.Unlock()
}

func (e *events) snapshotChats() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.chats...)
}

func (e *events) openCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opens)
}

func (e *events) closeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.closes)
}

func TestSocketGeneralRoundTrip(t *testing.T) {
	o := newTestOracle(t)
	server := newTestingSocket(t, o, Config{})
	client := newTestingSocket(t, o, Config{})
	defer server.Close()
	defer client.Close()

	received := make(chan string, 1)
	assert.NoError(t, server.RegisterGeneral(1, func(msg oracle.Message, from net.Addr) {
		received <- msg.(*joinRequest).Name
	}))

	assert.NoError(t, server.Listen("127.0.0.1:0"))
	assert.NoError(t, client.Listen("127.0.0.1:0"))

	assert.NoError(t, client.Send(server.transport.LocalAddr(), joinRequest{Name: "alice"}))

	select {
	case name := <-received:
		assert.Equal(t, "alice", name)
	case <-time.After(2 * time.Second):
		t.Fatal("general datagram never arrived")
	}

	assert.Eventually(t, func() bool { return server.Stats().DatagramsReceived == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return client.Stats().DatagramsSent == 1 }, time.Second, 10*time.Millisecond)
	assert.NotEqual(t, ID{}, server.ID)
	assert.NotEqual(t, server.ID, client.ID)
}

func TestSocketConnectAcceptFlow(t *testing.T) {
	o := newTestOracle(t)
	server := newTestingSocket(t, o, Config{})
	client := newTestingSocket(t, o, Config{})
	defer server.Close()
	defer client.Close()

	ev := &events{}
	assert.NoError(t, server.RegisterConnect(1, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		return first.(*joinRequest).Name, true
	}))
	assert.NoError(t, server.RegisterOpen(func(userData interface{}, from net.Addr) {
		ev.recordOpen(from)
	}))
	assert.NoError(t, server.RegisterClose(func(userData interface{}, from net.Addr, err error) {
		ev.recordClose(from)
	}))
	assert.NoError(t, server.RegisterStream(2, func(userData interface{}, msg oracle.Message, from net.Addr) {
		ev.recordChat(userData.(string) + ":" + msg.(*chatLine).Body)
	}))

	assert.NoError(t, server.Listen("127.0.0.1:0"))

	st, err := client.Connect(server.transport.LocalAddr().String(), joinRequest{Name: "bob"})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool { return ev.openCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	st.Enqueue(chatLine{Body: "hi"})
	st.Enqueue(chatLine{Body: "there"})

	assert.Eventually(t, func() bool { return len(ev.snapshotChats()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bob:hi", "bob:there"}, ev.snapshotChats())

	st.Close()
	assert.Eventually(t, func() bool { return ev.closeCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSocketConnectRejected(t *testing.T) {
	o := newTestOracle(t)
	server := newTestingSocket(t, o, Config{})
	client := newTestingSocket(t, o, Config{})
	defer server.Close()
	defer client.Close()

	ev := &events{}
	assert.NoError(t, server.RegisterConnect(1, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		return nil, false
	}))
	assert.NoError(t, server.RegisterOpen(func(userData interface{}, from net.Addr) {
		ev.recordOpen(from)
	}))
	assert.NoError(t, server.RegisterClose(func(userData interface{}, from net.Addr, err error) {
		ev.recordClose(from)
	}))

	assert.NoError(t, server.Listen("127.0.0.1:0"))

	st, err := client.Connect(server.transport.LocalAddr().String(), joinRequest{Name: "eve"})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool { return st.State() == stream.StateEnded }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ev.openCount())
	assert.Equal(t, 0, ev.closeCount())
}

func TestSocketAcceptRaceBuffersUntilResolved(t *testing.T) {
	o := newTestOracle(t)
	server := newTestingSocket(t, o, Config{})
	client := newTestingSocket(t, o, Config{})
	defer server.Close()
	defer client.Close()

	ev := &events{}
	resolve := make(chan struct{})
	assert.NoError(t, server.RegisterConnect(1, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		<-resolve // hold the decision open while the client enqueues more items
		return first.(*joinRequest).Name, true
	}))
	assert.NoError(t, server.RegisterOpen(func(userData interface{}, from net.Addr) {
		ev.recordOpen(from)
	}))
	assert.NoError(t, server.RegisterStream(2, func(userData interface{}, msg oracle.Message, from net.Addr) {
		ev.recordChat(msg.(*chatLine).Body)
	}))

	assert.NoError(t, server.Listen("127.0.0.1:0"))

	st, err := client.Connect(server.transport.LocalAddr().String(), joinRequest{Name: "carol"})
	assert.NoError(t, err)
	st.Enqueue(chatLine{Body: "first"})
	st.Enqueue(chatLine{Body: "second"})

	// Give the retransmitted items time to arrive and buffer behind the
	// still-pending connect decision before letting it resolve.
	time.Sleep(100 * time.Millisecond)
	close(resolve)

	assert.Eventually(t, func() bool { return ev.openCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(ev.snapshotChats()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, ev.snapshotChats())
}

func TestSocketMaxServerStreamsRejectsExtra(t *testing.T) {
	o := newTestOracle(t)
	server := newTestingSocket(t, o, Config{MaxServerStreams: 1})
	clientA := newTestingSocket(t, o, Config{})
	clientB := newTestingSocket(t, o, Config{})
	defer server.Close()
	defer clientA.Close()
	defer clientB.Close()

	ev := &events{}
	assert.NoError(t, server.RegisterConnect(1, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		return nil, true
	}))
	assert.NoError(t, server.RegisterOpen(func(userData interface{}, from net.Addr) {
		ev.recordOpen(from)
	}))

	assert.NoError(t, server.Listen("127.0.0.1:0"))

	stA, err := clientA.Connect(server.transport.LocalAddr().String(), joinRequest{Name: "a"})
	assert.NoError(t, err)
	defer stA.End(nil)

	assert.Eventually(t, func() bool { return ev.openCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	stB, err := clientB.Connect(server.transport.LocalAddr().String(), joinRequest{Name: "b"})
	assert.NoError(t, err)
	defer stB.End(nil)

	// The server silently drops datagrams from a remote once MaxServerStreams
	// is reached, so the second connect attempt never gets acknowledged.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, ev.openCount())
}

func TestSocketModesAreDisjoint(t *testing.T) {
	o := newTestOracle(t)
	listener := newTestingSocket(t, o, Config{})
	defer listener.Close()
	assert.NoError(t, listener.Listen("127.0.0.1:0"))
	_, err := listener.Connect("127.0.0.1:1", joinRequest{Name: "x"})
	assert.Equal(t, ErrServerMode, err)

	o2 := newTestOracle(t)
	dialer := newTestingSocket(t, o2, Config{})
	defer dialer.Close()
	other := newTestingSocket(t, o2, Config{})
	defer other.Close()
	assert.NoError(t, other.RegisterConnect(1, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		return nil, true
	}))
	assert.NoError(t, other.Listen("127.0.0.1:0"))
	_, err = dialer.Connect(other.transport.LocalAddr().String(), joinRequest{Name: "y"})
	assert.NoError(t, err)
	err = dialer.Listen("127.0.0.1:0")
	assert.Equal(t, ErrClientMode, err)
}

func TestSocketCloseIsIdempotentAndReleasesTransport(t *testing.T) {
	o := newTestOracle(t)
	s := newTestingSocket(t, o, Config{})
	assert.NoError(t, s.Listen("127.0.0.1:0"))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
