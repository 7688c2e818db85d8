package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/metrics"
	"github.com/roomcast/roomcast/internal/protocol"
)

// Relay forwards offer/answer/candidate blobs to exactly one target handle.
// It is stateless: no membership check, no retries, and payloads pass
// through untouched. A message for a handle that is no longer connected is
// dropped without telling the sender.
type Relay struct {
	reg *Registry
}

func NewRelay(reg *Registry) *Relay {
	return &Relay{reg: reg}
}

// Offer forwards a session-description offer. The sender's descriptor rides
// along so the callee can label who is calling.
func (r *Relay) Offer(from, target domain.ConnID, offer json.RawMessage) {
	user, _ := r.reg.UserOf(from)
	r.forward("offer", target, protocol.EventOffer, protocol.OfferForward{
		FromUserID: string(from),
		Offer:      offer,
		User:       user,
	})
}

func (r *Relay) Answer(from, target domain.ConnID, answer json.RawMessage) {
	r.forward("answer", target, protocol.EventAnswer, protocol.AnswerForward{
		FromUserID: string(from),
		Answer:     answer,
	})
}

func (r *Relay) Candidate(from, target domain.ConnID, candidate json.RawMessage) {
	r.forward("candidate", target, protocol.EventICECandidate, protocol.CandidateForward{
		FromUserID: string(from),
		Candidate:  candidate,
	})
}

func (r *Relay) forward(kind string, target domain.ConnID, event string, payload any) {
	sc, ok := r.reg.SignalOf(target)
	if !ok {
		metrics.RelayDroppedTotal.WithLabelValues(kind).Inc()
		log.Debug().Str("module", "core.relay").Str("kind", kind).Str("target", string(target)).Msg("target not connected, dropped")
		return
	}
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.relay").Str("kind", kind).Msg("encode forward")
		return
	}
	if err := sc.TrySend(frame); err != nil {
		metrics.RelayDroppedTotal.WithLabelValues(kind).Inc()
		log.Warn().Str("module", "core.relay").Str("kind", kind).Str("target", string(target)).Msg("forward dropped on backpressure")
		return
	}
	metrics.RelayForwardedTotal.WithLabelValues(kind).Inc()
}
