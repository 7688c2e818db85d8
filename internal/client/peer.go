package client

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/roomcast/roomcast/internal/rtc"
)

// MediaConn is the peer-connection capability one peer link drives. The
// production implementation is rtc.Conn; tests substitute a fake.
type MediaConn interface {
	Start(ctx context.Context) error
	CreateOffer() (webrtc.SessionDescription, error)
	ApplyOfferCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(ci webrtc.ICECandidateInit) error
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(track *webrtc.TrackRemote))
	OnStateChange(func(webrtc.PeerConnectionState))
	Close()
}

// MediaDialer creates the capability for one remote handle.
type MediaDialer func(remote string) (MediaConn, error)

// PionDialer is the production dialer.
func PionDialer(cfg webrtc.Configuration) MediaDialer {
	return func(remote string) (MediaConn, error) {
		return rtc.New(cfg, remote)
	}
}

// PeerState is the negotiation state of one peer link.
type PeerState int

const (
	PeerIdle PeerState = iota
	PeerOfferSent
	PeerOfferReceived
	PeerNegotiating
	PeerConnected
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerIdle:
		return "idle"
	case PeerOfferSent:
		return "offer-sent"
	case PeerOfferReceived:
		return "offer-received"
	case PeerNegotiating:
		return "negotiating"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerLink is the per-remote record: at most one exists per remote handle,
// and a closed one is never resurrected — a fresh join cycle makes a new one.
type peerLink struct {
	remote   string
	state    PeerState
	media    MediaConn
	streamID string // zero or one remote stream
}

// PeerStatus is the read-only view of one link for rendering collaborators.
type PeerStatus struct {
	UserID    string
	State     PeerState
	HasStream bool
}
