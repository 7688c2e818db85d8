// Package rtc wraps a pion PeerConnection behind the small surface the
// peer session manager drives.
package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Conn struct {
	pc     *webrtc.PeerConnection
	remote string
	cancel context.CancelFunc

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(track *webrtc.TrackRemote)
	onState func(webrtc.PeerConnectionState)
}

// DefaultConfig is STUN-only; direct connectivity is assumed reachable.
func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func New(cfg webrtc.Configuration, remote string) (*Conn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{pc: pc, remote: remote}, nil
}

// Start wires the stored callbacks into the PeerConnection and binds the
// connection lifetime to ctx. Set the On* handlers before calling Start.
func (c *Conn) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", c.remote).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", c.remote).Str("peer_state", s.String()).Msg("peer state")
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("remote", c.remote).
			Str("kind", track.Kind().String()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if c.onTrack != nil {
			c.onTrack(track)
		}
	})

	go func() {
		<-ctx.Done()
		_ = c.pc.Close()
	}()
	return nil
}

// CreateOffer generates and installs the local description. Candidates
// trickle through OnICECandidate; the SDP is not held back for gathering.
func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// ApplyOfferCreateAnswer installs the remote offer and produces the local
// answer.
func (c *Conn) ApplyOfferCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Conn) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

// AddICECandidate applies a remote candidate. Candidates arriving before the
// remote description are buffered by pion, not by us.
func (c *Conn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Conn) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *Conn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *Conn) OnTrack(fn func(track *webrtc.TrackRemote)) { c.onTrack = fn }

// OnStateChange sets the connectivity callback that drives the session's
// Connected/Closed transitions.
func (c *Conn) OnStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

func (c *Conn) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", c.remote).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("remote", c.remote).Msg("closed")
		}
	}
}
