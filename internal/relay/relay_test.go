package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamyashm/pyRace/pkg/wire"
)

func testRelay(t *testing.T) (*Server, string) {
	t.Helper()
	s, err := New(Config{HelloTimeout: time.Second}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/race"
}

type testClient struct {
	t     *testing.T
	conn  *ws.Conn
	codec wire.Codec
}

func dial(t *testing.T, url string, codec wire.Codec) *testClient {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, codec: codec}
}

func (c *testClient) send(m wire.Message) {
	c.t.Helper()
	data, err := c.codec.Encode(m)
	require.NoError(c.t, err)
	mt := ws.TextMessage
	if c.codec.Binary() {
		mt = ws.BinaryMessage
	}
	require.NoError(c.t, c.conn.WriteMessage(mt, data))
}

func (c *testClient) recv() wire.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	assert.Equal(c.t, c.codec.Binary(), mt == ws.BinaryMessage)
	m, err := c.codec.Decode(data)
	require.NoError(c.t, err)
	return m
}

func join(t *testing.T, url string, codec wire.Codec) (*testClient, *wire.Welcome) {
	t.Helper()
	c := dial(t, url, codec)
	c.send(wire.Control(wire.TypeHello))
	m := c.recv()
	require.Equal(t, wire.TypeWelcome, m.Type)
	require.NotNil(t, m.Welcome)
	return c, m.Welcome
}

func TestRelay_AssignsSlotsAndRejectsThird(t *testing.T) {
	s, url := testRelay(t)

	_, w1 := join(t, url, wire.JSON{})
	_, w2 := join(t, url, wire.JSON{})
	assert.Equal(t, int64(1), w1.Slot)
	assert.Equal(t, int64(2), w2.Slot)
	assert.NotEmpty(t, w1.Session)
	assert.Equal(t, w1.Session, w2.Session, "both slots share the race session")
	assert.Equal(t, 2, s.Occupied())

	c := dial(t, url, wire.JSON{})
	c.send(wire.Control(wire.TypeHello))
	assert.Equal(t, wire.TypeFull, c.recv().Type)

	_, _, err := c.conn.ReadMessage()
	assert.Error(t, err, "rejected client is disconnected")
	assert.Equal(t, 2, s.Occupied())
}

func TestRelay_ForwardsStateToOtherSlot(t *testing.T) {
	_, url := testRelay(t)

	a, _ := join(t, url, wire.JSON{})
	b, _ := join(t, url, wire.JSON{})

	a.send(wire.NewState(wire.State{Slot: 1, Tick: 9, X: 23.4, Y: 23.4, VX: 5}))
	m := b.recv()
	require.Equal(t, wire.TypeState, m.Type)
	require.NotNil(t, m.State)
	assert.Equal(t, uint64(9), m.State.Tick)
	assert.Equal(t, 5.0, m.State.VX)

	b.send(wire.NewState(wire.State{Slot: 2, Tick: 3}))
	m = a.recv()
	require.Equal(t, wire.TypeState, m.Type)
	assert.Equal(t, int64(2), m.State.Slot)
}

func TestRelay_PeerLeftFreesSlot(t *testing.T) {
	s, url := testRelay(t)

	a, _ := join(t, url, wire.JSON{})
	b, _ := join(t, url, wire.JSON{})

	require.NoError(t, a.conn.Close())
	assert.Equal(t, wire.TypePeerLeft, b.recv().Type)
	assert.Equal(t, 1, s.Occupied())

	_, w := join(t, url, wire.JSON{})
	assert.Equal(t, int64(1), w.Slot, "lowest free slot is reused")
}

func TestRelay_ProtobufClient(t *testing.T) {
	_, url := testRelay(t)

	a, w := join(t, url, wire.Protobuf{})
	assert.Equal(t, int64(1), w.Slot)
	b, _ := join(t, url, wire.Protobuf{})

	a.send(wire.NewState(wire.State{Slot: 1, Tick: 77, Heading: 45}))
	m := b.recv()
	require.NotNil(t, m.State)
	assert.Equal(t, uint64(77), m.State.Tick)
	assert.Equal(t, 45.0, m.State.Heading)
}

func TestRelay_RequiresHello(t *testing.T) {
	s, url := testRelay(t)

	c := dial(t, url, wire.JSON{})
	c.send(wire.NewState(wire.State{Slot: 1}))

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, s.Occupied())
}

func TestAdmit_LowestFreeSlot(t *testing.T) {
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	a, b, c := &client{}, &client{}, &client{}
	session, err := s.admit(a)
	require.NoError(t, err)
	_, err = s.admit(b)
	require.NoError(t, err)
	assert.Equal(t, 1, a.slot)
	assert.Equal(t, 2, b.slot)

	_, err = s.admit(c)
	assert.ErrorIs(t, err, ErrFull)

	assert.Same(t, b, s.release(a))
	again, err := s.admit(c)
	require.NoError(t, err)
	assert.Equal(t, 1, c.slot)
	assert.Equal(t, session, again, "session kept while a slot stays occupied")

	s.release(b)
	s.release(c)
	fresh, err := s.admit(a)
	require.NoError(t, err)
	assert.NotEqual(t, session, fresh, "empty relay starts a new session")
}
