package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/internal/protocol"
)

type linkServer struct {
	srv      *httptest.Server
	url      string
	received chan protocol.Envelope
	outbound chan []byte
}

func newLinkServer(t *testing.T) *linkServer {
	t.Helper()
	ls := &linkServer{
		received: make(chan protocol.Envelope, 16),
		outbound: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for frame := range ls.outbound {
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if env, err := protocol.Decode(data); err == nil {
				ls.received <- env
			}
		}
	}))
	t.Cleanup(ls.srv.Close)
	ls.url = "ws" + strings.TrimPrefix(ls.srv.URL, "http")
	return ls
}

func TestLinkSendAndDispatch(t *testing.T) {
	ls := newLinkServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := Dial(ctx, ls.url)
	require.NoError(t, err)
	defer l.Close()

	sess := NewSession(SessionOptions{
		Sender: l,
		Dial:   func(string) (MediaConn, error) { return &fakeMedia{}, nil },
	})
	go func() { _ = l.Run(ctx, sess) }()

	require.NoError(t, sess.Join("r1", []byte(`{"name":"me"}`)))
	select {
	case env := <-ls.received:
		assert.Equal(t, protocol.EventJoin, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("join never reached the server")
	}

	frame, err := protocol.Encode(protocol.EventUserJoined, protocol.UserJoined{
		UserID: "h1", User: []byte(`{"name":"a"}`), ParticipantCount: 2,
	})
	require.NoError(t, err)
	ls.outbound <- frame

	require.Eventually(t, func() bool {
		return len(sess.Snapshot().Participants) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "h1", sess.Snapshot().Participants[0].UserID)
}

func TestLinkSendAfterCloseFails(t *testing.T) {
	ls := newLinkServer(t)
	l, err := Dial(context.Background(), ls.url)
	require.NoError(t, err)

	l.Close()
	assert.ErrorIs(t, l.Send(protocol.EventLeave, struct{}{}), ErrLinkClosed)
}
