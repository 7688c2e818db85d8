package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "test-stream",
	)
	require.NoError(t, err)
	return track
}

func TestDefaultConfigIsSTUNOnly(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.ICEServers, 1)
	assert.Contains(t, cfg.ICEServers[0].URLs[0], "stun:")
	assert.Empty(t, cfg.ICEServers[0].Credential)
}

func TestOfferAnswerExchange(t *testing.T) {
	// STUN is not consulted here; description exchange is all local.
	a, err := New(webrtc.Configuration{}, "b")
	require.NoError(t, err)
	defer a.Close()
	b, err := New(webrtc.Configuration{}, "a")
	require.NoError(t, err)
	defer b.Close()

	_, err = a.AddLocalTrack(newTrack(t))
	require.NoError(t, err)
	_, err = b.AddLocalTrack(newTrack(t))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.NotEmpty(t, offer.SDP)

	answer, err := b.ApplyOfferCreateAnswer(offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, a.ApplyAnswer(answer))
}

func TestCloseCancelsLifetime(t *testing.T) {
	c, err := New(webrtc.Configuration{}, "x")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	c.Close()
	// a second close is harmless
	c.Close()
}
