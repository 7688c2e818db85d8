package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/protocol"
)

// recordConn captures every frame sent to one connection, decoded back into
// envelopes for assertions.
type recordConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
}

func (c *recordConn) TrySend(f Frame) error {
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, env)
	c.mu.Unlock()
	return nil
}

func (c *recordConn) Close() {}

func (c *recordConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func (c *recordConn) countEvent(event string) int {
	n := 0
	for _, e := range c.events() {
		if e == event {
			n++
		}
	}
	return n
}

// lastAs decodes the most recent frame with the given event name.
func lastAs[T any](t *testing.T, c *recordConn, event string) T {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event != event {
			continue
		}
		var out T
		require.NoError(t, json.Unmarshal(c.frames[i].Data, &out))
		return out
	}
	t.Fatalf("no %s frame recorded", event)
	panic("unreachable")
}

func newPresenceFixture() (*Presence, *Registry) {
	reg := NewRegistry()
	return NewPresence(reg), reg
}

func connect(p *Presence, reg *Registry, id domain.ConnID) *recordConn {
	c := &recordConn{}
	reg.Register(id, c)
	return c
}

func TestJoinEmptyRoom(t *testing.T) {
	p, reg := newPresenceFixture()
	h1 := connect(p, reg, "H1")

	p.Join("H1", "r1", []byte(`{"id":"u1"}`))

	joined := lastAs[protocol.Joined](t, h1, protocol.EventJoined)
	assert.Equal(t, "r1", joined.RoomID)
	assert.Empty(t, joined.Participants)
	assert.Equal(t, 1, joined.ParticipantCount)
}

func TestSecondJoinerSeenByFirst(t *testing.T) {
	p, reg := newPresenceFixture()
	h1 := connect(p, reg, "H1")
	h2 := connect(p, reg, "H2")

	p.Join("H1", "r1", []byte(`{"id":"u1"}`))
	p.Join("H2", "r1", []byte(`{"id":"u2"}`))

	uj := lastAs[protocol.UserJoined](t, h1, protocol.EventUserJoined)
	assert.Equal(t, "H2", uj.UserID)
	assert.JSONEq(t, `{"id":"u2"}`, string(uj.User))
	assert.Equal(t, 2, uj.ParticipantCount)

	joined := lastAs[protocol.Joined](t, h2, protocol.EventJoined)
	assert.Equal(t, 2, joined.ParticipantCount)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, "H1", joined.Participants[0].UserID)
	assert.JSONEq(t, `{"id":"u1"}`, string(joined.Participants[0].User))

	// the joiner is never told about itself
	assert.Zero(t, h2.countEvent(protocol.EventUserJoined))
}

func TestJoinValidation(t *testing.T) {
	tests := []struct {
		name string
		room domain.RoomID
		user domain.UserDescriptor
	}{
		{"missing room", "", []byte(`{"id":"u1"}`)},
		{"missing user", "r1", nil},
		{"null user", "r1", []byte(`null`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, reg := newPresenceFixture()
			other := connect(p, reg, "other")
			p.Join("other", "r1", []byte(`{"id":"x"}`))

			bad := connect(p, reg, "bad")
			p.Join("bad", tc.room, tc.user)

			assert.Equal(t, []string{protocol.EventError}, bad.events())
			_, ok := reg.RoomOf("bad")
			assert.False(t, ok, "invalid join must not change state")
			// no broadcast to anyone else
			assert.Zero(t, other.countEvent(protocol.EventUserJoined))
		})
	}
}

func TestRejoinSwitchesRooms(t *testing.T) {
	p, reg := newPresenceFixture()
	a := connect(p, reg, "A")
	b := connect(p, reg, "B")
	mover := connect(p, reg, "M")

	p.Join("A", "roomA", []byte(`{"id":"a"}`))
	p.Join("B", "roomB", []byte(`{"id":"b"}`))
	p.Join("M", "roomA", []byte(`{"id":"m"}`))
	p.Join("M", "roomB", []byte(`{"id":"m"}`))

	// exactly one departure seen in A, exactly one arrival seen in B
	assert.Equal(t, 1, a.countEvent(protocol.EventUserLeft))
	left := lastAs[protocol.UserLeft](t, a, protocol.EventUserLeft)
	assert.Equal(t, "M", left.UserID)
	assert.Equal(t, 1, left.ParticipantCount)

	assert.Equal(t, 1, b.countEvent(protocol.EventUserJoined))

	assert.NotContains(t, reg.MembersOf("roomA"), domain.ConnID("M"))
	assert.Contains(t, reg.MembersOf("roomB"), domain.ConnID("M"))

	// mover got two room:joined replies, one per join
	assert.Equal(t, 2, mover.countEvent(protocol.EventJoined))
}

func TestLeaveBroadcastsToRemaining(t *testing.T) {
	p, reg := newPresenceFixture()
	connect(p, reg, "H1")
	h2 := connect(p, reg, "H2")

	p.Join("H1", "r1", []byte(`{"id":"u1"}`))
	p.Join("H2", "r1", []byte(`{"id":"u2"}`))
	p.Leave("H1")

	left := lastAs[protocol.UserLeft](t, h2, protocol.EventUserLeft)
	assert.Equal(t, "H1", left.UserID)
	assert.JSONEq(t, `{"id":"u1"}`, string(left.User))
	assert.Equal(t, 1, left.ParticipantCount)
}

func TestLeaveWhenUnjoinedIsNoop(t *testing.T) {
	p, reg := newPresenceFixture()
	h1 := connect(p, reg, "H1")
	other := connect(p, reg, "H2")
	p.Join("H2", "r1", []byte(`{"id":"u2"}`))

	p.Leave("H1")

	assert.Empty(t, h1.events())
	assert.Zero(t, other.countEvent(protocol.EventUserLeft))
}

func TestLeaveThenDisconnectBroadcastsOnce(t *testing.T) {
	p, reg := newPresenceFixture()
	connect(p, reg, "H1")
	h2 := connect(p, reg, "H2")

	p.Join("H1", "r1", []byte(`{"id":"u1"}`))
	p.Join("H2", "r1", []byte(`{"id":"u2"}`))

	p.Leave("H1")
	p.Disconnect("H1")

	assert.Equal(t, 1, h2.countEvent(protocol.EventUserLeft))
}

func TestDisconnectBehavesLikeLeave(t *testing.T) {
	p, reg := newPresenceFixture()
	connect(p, reg, "H1")
	h2 := connect(p, reg, "H2")

	p.Join("H1", "r1", []byte(`{"id":"u1"}`))
	p.Join("H2", "r1", []byte(`{"id":"u2"}`))
	p.Disconnect("H1")

	left := lastAs[protocol.UserLeft](t, h2, protocol.EventUserLeft)
	assert.Equal(t, "H1", left.UserID)
	assert.Equal(t, 1, left.ParticipantCount)
	_, ok := reg.SignalOf("H1")
	assert.False(t, ok, "disconnect must forget the connection")
}

func TestConcurrentJoinsToOneRoom(t *testing.T) {
	p, reg := newPresenceFixture()
	observer := connect(p, reg, "obs")
	p.Join("obs", "r1", []byte(`{"id":"obs"}`))

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		connect(p, reg, id)
		wg.Add(1)
		go func(id domain.ConnID) {
			defer wg.Done()
			p.Join(id, "r1", []byte(`{"id":"x"}`))
		}(id)
	}
	wg.Wait()

	assert.Len(t, reg.MembersOf("r1"), n+1)
	assert.Equal(t, n, observer.countEvent(protocol.EventUserJoined))
}

func TestConcurrentChurnKeepsInvariants(t *testing.T) {
	p, reg := newPresenceFixture()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		connect(p, reg, id)
		wg.Add(1)
		go func(id domain.ConnID) {
			defer wg.Done()
			p.Join(id, "a", []byte(`{"id":"x"}`))
			p.Join(id, "b", []byte(`{"id":"x"}`))
			p.Leave(id)
		}(id)
	}
	wg.Wait()

	assert.Empty(t, reg.MembersOf("a"))
	assert.Empty(t, reg.MembersOf("b"))
}
