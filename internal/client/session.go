// Package client is the peer session manager: it owns the local capture,
// one peer link per remote handle, and the participant list, and it drives
// the per-peer negotiation state machine over the signaling relay.
package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/protocol"
	"github.com/roomcast/roomcast/internal/rtc"
)

// SignalSender sends one envelope to the server.
type SignalSender interface {
	Send(event string, payload any) error
}

type SessionOptions struct {
	Sender  SignalSender
	Acquire CaptureFunc // nil -> NewCapture
	Dial    MediaDialer // nil -> PionDialer(rtc.DefaultConfig())
	Context context.Context
}

// Session owns all mutable client state. Everything is mutated only through
// its methods; rendering collaborators read Snapshot copies.
type Session struct {
	ctx     context.Context
	send    SignalSender
	acquire CaptureFunc
	dial    MediaDialer

	mu           sync.Mutex
	roomID       string
	capture      *Capture
	peers        map[string]*peerLink
	participants map[string]domain.UserDescriptor
}

func NewSession(opts SessionOptions) *Session {
	if opts.Acquire == nil {
		opts.Acquire = NewCapture
	}
	if opts.Dial == nil {
		opts.Dial = PionDialer(rtc.DefaultConfig())
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Session{
		ctx:          opts.Context,
		send:         opts.Sender,
		acquire:      opts.Acquire,
		dial:         opts.Dial,
		peers:        make(map[string]*peerLink),
		participants: make(map[string]domain.UserDescriptor),
	}
}

// Join acquires the capture first, then asks the server for the room.
// A capture failure returns before any signaling happens.
func (s *Session) Join(roomID string, user domain.UserDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		cap, err := s.acquire()
		if err != nil {
			return err
		}
		s.capture = cap
	}
	s.roomID = roomID
	return s.send.Send(protocol.EventJoin, protocol.JoinRequest{RoomID: roomID, User: user})
}

// Leave tears the whole session down: every peer link, then the shared
// capture exactly once, then the server notification.
func (s *Session) Leave() {
	s.mu.Lock()
	for id := range s.peers {
		s.closePeerLocked(id)
	}
	s.participants = make(map[string]domain.UserDescriptor)
	s.roomID = ""
	cap := s.capture
	s.capture = nil
	s.mu.Unlock()

	if cap != nil {
		cap.Release()
	}
	if err := s.send.Send(protocol.EventLeave, struct{}{}); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("send leave")
	}
}

// Capture exposes the shared capture so a device layer can feed it.
func (s *Session) Capture() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// ToggleAudio flips the shared capture's audio gate and reports the new
// state. Visible to every peer link at once.
func (s *Session) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return false
	}
	on := !s.capture.AudioEnabled()
	s.capture.SetAudioEnabled(on)
	return on
}

func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return false
	}
	on := !s.capture.VideoEnabled()
	s.capture.SetVideoEnabled(on)
	return on
}

// Handle dispatches one server envelope by exact event name.
func (s *Session) Handle(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoined:
		var p protocol.Joined
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad joined payload")
			return
		}
		s.handleJoined(p)
	case protocol.EventUserJoined:
		var p protocol.UserJoined
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad user-joined payload")
			return
		}
		s.handleUserJoined(p)
	case protocol.EventUserLeft:
		var p protocol.UserLeft
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad user-left payload")
			return
		}
		s.handleUserLeft(p)
	case protocol.EventOffer:
		var p protocol.OfferForward
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad offer payload")
			return
		}
		s.handleOffer(p)
	case protocol.EventAnswer:
		var p protocol.AnswerForward
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad answer payload")
			return
		}
		s.handleAnswer(p)
	case protocol.EventICECandidate:
		var p protocol.CandidateForward
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad candidate payload")
			return
		}
		s.handleCandidate(p)
	case protocol.EventError:
		var p protocol.ErrorReply
		_ = json.Unmarshal(env.Data, &p)
		log.Error().Str("module", "client.session").Str("message", p.Message).Msg("server error")
	default:
		log.Warn().Str("module", "client.session").Str("event", env.Event).Msg("unknown event")
	}
}

// handleJoined records the room roster and opens an offer toward every
// member that was already there.
func (s *Session) handleJoined(p protocol.Joined) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomID = p.RoomID
	for _, part := range p.Participants {
		s.participants[part.UserID] = part.User
	}
	log.Info().Str("module", "client.session").Str("room", p.RoomID).Int("count", p.ParticipantCount).Msg("joined")

	for _, part := range p.Participants {
		s.offerLocked(part.UserID)
	}
}

func (s *Session) handleUserJoined(p protocol.UserJoined) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The newcomer initiates toward us; we only track the roster here.
	s.participants[p.UserID] = p.User
	log.Info().Str("module", "client.session").Str("user", p.UserID).Int("count", p.ParticipantCount).Msg("user joined")
}

func (s *Session) handleUserLeft(p protocol.UserLeft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, p.UserID)
	s.closePeerLocked(p.UserID)
	log.Info().Str("module", "client.session").Str("user", p.UserID).Int("count", p.ParticipantCount).Msg("user left")
}

// offerLocked starts the self-initiated path: new link, local capture
// attached, offer out, state OfferSent.
func (s *Session) offerLocked(remote string) {
	if _, exists := s.peers[remote]; exists {
		return
	}
	pl, err := s.newPeerLocked(remote)
	if err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", remote).Msg("create peer")
		return
	}
	offer, err := pl.media.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", remote).Msg("create offer")
		s.closePeerLocked(remote)
		return
	}
	blob, err := json.Marshal(offer)
	if err != nil {
		s.closePeerLocked(remote)
		return
	}
	pl.state = PeerOfferSent
	if err := s.send.Send(protocol.EventOffer, protocol.OfferRequest{TargetUserID: remote, Offer: blob}); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", remote).Msg("send offer")
		s.closePeerLocked(remote)
	}
}

// handleOffer is the passive path: create the link if absent, answer, move
// to Negotiating. An offer for a remote we are already negotiating with is
// dropped rather than resetting the existing link.
func (s *Session) handleOffer(p protocol.OfferForward) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[p.FromUserID]; exists {
		log.Warn().Str("module", "client.session").Str("remote", p.FromUserID).Msg("offer for existing peer, dropped")
		return
	}
	if p.User != nil {
		s.participants[p.FromUserID] = p.User
	}

	pl, err := s.newPeerLocked(p.FromUserID)
	if err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("create peer")
		return
	}
	pl.state = PeerOfferReceived

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(p.Offer, &offer); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("bad offer sdp")
		s.closePeerLocked(p.FromUserID)
		return
	}
	answer, err := pl.media.ApplyOfferCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("answer offer")
		s.closePeerLocked(p.FromUserID)
		return
	}
	pl.state = PeerNegotiating

	blob, err := json.Marshal(answer)
	if err != nil {
		s.closePeerLocked(p.FromUserID)
		return
	}
	if err := s.send.Send(protocol.EventAnswer, protocol.AnswerRequest{TargetUserID: p.FromUserID, Answer: blob}); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("send answer")
		s.closePeerLocked(p.FromUserID)
	}
}

func (s *Session) handleAnswer(p protocol.AnswerForward) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, ok := s.peers[p.FromUserID]
	if !ok || pl.state != PeerOfferSent {
		log.Warn().Str("module", "client.session").Str("remote", p.FromUserID).Msg("unexpected answer, dropped")
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(p.Answer, &answer); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("bad answer sdp")
		return
	}
	if err := pl.media.ApplyAnswer(answer); err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("apply answer")
		s.closePeerLocked(p.FromUserID)
		return
	}
	pl.state = PeerNegotiating
}

// handleCandidate forwards a candidate to the matching link; no link, no
// delivery. Pre-description buffering is the capability's business.
func (s *Session) handleCandidate(p protocol.CandidateForward) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, ok := s.peers[p.FromUserID]
	if !ok {
		log.Debug().Str("module", "client.session").Str("remote", p.FromUserID).Msg("candidate for unknown peer, dropped")
		return
	}
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &ci); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("bad candidate")
		return
	}
	if err := pl.media.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("remote", p.FromUserID).Msg("add candidate")
	}
}

// newPeerLocked creates the one link allowed per remote, attaches the shared
// capture tracks by reference, and wires capability callbacks. Callbacks hop
// onto fresh goroutines so the capability can never re-enter us.
func (s *Session) newPeerLocked(remote string) (*peerLink, error) {
	mc, err := s.dial(remote)
	if err != nil {
		return nil, err
	}

	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		blob, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := s.send.Send(protocol.EventICECandidate, protocol.CandidateRequest{TargetUserID: remote, Candidate: blob}); err != nil {
			log.Warn().Err(err).Str("module", "client.session").Str("remote", remote).Msg("send candidate")
		}
	})
	mc.OnTrack(func(track *webrtc.TrackRemote) {
		go s.peerTrack(remote, track.StreamID())
	})
	mc.OnStateChange(func(st webrtc.PeerConnectionState) {
		go s.peerStateChanged(remote, st)
	})

	if s.capture != nil {
		for _, t := range s.capture.Tracks() {
			if _, err := mc.AddLocalTrack(t); err != nil {
				mc.Close()
				return nil, err
			}
		}
	}
	if err := mc.Start(s.ctx); err != nil {
		mc.Close()
		return nil, err
	}

	pl := &peerLink{remote: remote, media: mc, state: PeerIdle}
	s.peers[remote] = pl
	return pl, nil
}

func (s *Session) peerTrack(remote, streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pl, ok := s.peers[remote]; ok {
		pl.streamID = streamID
	}
}

// peerStateChanged is the connectivity signal: it alone moves a link to
// Connected, and a failed/disconnected capability tears down that one link
// without touching the rest of the session.
func (s *Session) peerStateChanged(remote string, st webrtc.PeerConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, ok := s.peers[remote]
	if !ok {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		pl.state = PeerConnected
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		log.Warn().Str("module", "client.session").Str("remote", remote).Str("state", st.String()).Msg("negotiation failure, closing peer")
		s.closePeerLocked(remote)
	}
}

func (s *Session) closePeerLocked(remote string) {
	pl, ok := s.peers[remote]
	if !ok {
		return
	}
	delete(s.peers, remote)
	pl.state = PeerClosed
	pl.streamID = ""
	pl.media.Close()
	log.Info().Str("module", "client.session").Str("remote", remote).Msg("peer closed")
}

// Snapshot is the read-only view handed to rendering collaborators.
type Snapshot struct {
	RoomID       string
	Participants []protocol.Participant
	Peers        []PeerStatus
	AudioEnabled bool
	VideoEnabled bool
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{RoomID: s.roomID}
	for id, u := range s.participants {
		snap.Participants = append(snap.Participants, protocol.Participant{UserID: id, User: u})
	}
	sort.Slice(snap.Participants, func(i, j int) bool { return snap.Participants[i].UserID < snap.Participants[j].UserID })
	for id, pl := range s.peers {
		snap.Peers = append(snap.Peers, PeerStatus{UserID: id, State: pl.state, HasStream: pl.streamID != ""})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].UserID < snap.Peers[j].UserID })
	if s.capture != nil {
		snap.AudioEnabled = s.capture.AudioEnabled()
		snap.VideoEnabled = s.capture.VideoEnabled()
	}
	return snap
}
