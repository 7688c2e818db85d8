// Package protocol defines the wire messages exchanged over a signaling
// connection. Every frame is a JSON envelope {event, data}; payload shapes
// are statically typed per event name.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/roomcast/roomcast/internal/domain"
)

var errMissingEvent = errors.New("frame has no event name")

// Inbound event names (client -> server).
const (
	EventJoin         = "room:join"
	EventLeave        = "room:leave"
	EventOffer        = "room:offer"
	EventAnswer       = "room:answer"
	EventICECandidate = "room:ice-candidate"
)

// Outbound event names (server -> client). Offer/answer/candidate reuse the
// inbound names; the payload shape differs by direction.
const (
	EventJoined     = "room:joined"
	EventUserJoined = "room:user-joined"
	EventUserLeft   = "room:user-left"
	EventError      = "room:error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest carries room:join. Both fields are required.
type JoinRequest struct {
	RoomID string                `json:"roomId"`
	User   domain.UserDescriptor `json:"user"`
}

// OfferRequest carries an inbound room:offer. The offer blob is opaque to
// the relay.
type OfferRequest struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
}

type AnswerRequest struct {
	TargetUserID string          `json:"targetUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type CandidateRequest struct {
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

// Participant is one room member as seen by another.
type Participant struct {
	UserID string                `json:"userId"`
	User   domain.UserDescriptor `json:"user"`
}

// Joined is the reply to the joiner alone. Participants never includes the
// joiner itself.
type Joined struct {
	RoomID           string        `json:"roomId"`
	Participants     []Participant `json:"participants"`
	ParticipantCount int           `json:"participantCount"`
}

// UserJoined is broadcast to the room minus the joiner.
type UserJoined struct {
	UserID           string                `json:"userId"`
	User             domain.UserDescriptor `json:"user"`
	ParticipantCount int                   `json:"participantCount"`
}

// UserLeft is broadcast to the members remaining after a departure.
type UserLeft struct {
	UserID           string                `json:"userId"`
	User             domain.UserDescriptor `json:"user"`
	ParticipantCount int                   `json:"participantCount"`
}

// OfferForward is the outbound room:offer delivered to the target. It
// carries the sender's descriptor so the callee can label the caller.
type OfferForward struct {
	FromUserID string                `json:"fromUserId"`
	Offer      json.RawMessage       `json:"offer"`
	User       domain.UserDescriptor `json:"user"`
}

type AnswerForward struct {
	FromUserID string          `json:"fromUserId"`
	Answer     json.RawMessage `json:"answer"`
}

type CandidateForward struct {
	FromUserID string          `json:"fromUserId"`
	Candidate  json.RawMessage `json:"candidate"`
}

type ErrorReply struct {
	Message string `json:"message"`
}

// Encode wraps a payload into an envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses an envelope frame. The payload stays raw until the dispatch
// table picks the typed shape for the event name.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, err
	}
	if env.Event == "" {
		return env, errMissingEvent
	}
	return env, nil
}
