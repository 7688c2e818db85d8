package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/protocol"
)

func (ctl *Controller) handleJoin(id domain.ConnID, c *wsConn, data []byte) {
	var p protocol.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad join payload")
		ctl.sendError(c, "roomId and user are required")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", p.RoomID).Msg("join")
	ctl.Presence.Join(id, domain.RoomID(p.RoomID), p.User)
}

func (ctl *Controller) handleOffer(id domain.ConnID, data []byte) {
	var p protocol.OfferRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad offer payload")
		return
	}
	ctl.Relay.Offer(id, domain.ConnID(p.TargetUserID), p.Offer)
}

func (ctl *Controller) handleAnswer(id domain.ConnID, data []byte) {
	var p protocol.AnswerRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad answer payload")
		return
	}
	ctl.Relay.Answer(id, domain.ConnID(p.TargetUserID), p.Answer)
}

func (ctl *Controller) handleCandidate(id domain.ConnID, data []byte) {
	var p protocol.CandidateRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad candidate payload")
		return
	}
	ctl.Relay.Candidate(id, domain.ConnID(p.TargetUserID), p.Candidate)
}
