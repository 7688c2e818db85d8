package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/metrics"
	"github.com/roomcast/roomcast/internal/protocol"
)

// Presence implements the join/leave/disconnect protocol on top of the
// Registry. Every membership-changing operation on a room runs under that
// room's own mutex, so notifications observed by members reflect one total
// order per room while distinct rooms proceed in parallel.
type Presence struct {
	reg *Registry

	mu    sync.RWMutex
	locks map[domain.RoomID]*sync.Mutex
}

func NewPresence(reg *Registry) *Presence {
	return &Presence{
		reg:   reg,
		locks: make(map[domain.RoomID]*sync.Mutex),
	}
}

// Join validates the request, performs an implicit leave when the handle is
// already a member somewhere, then binds it and notifies the room. The reply
// to the joiner never lists the joiner itself.
func (p *Presence) Join(id domain.ConnID, roomID domain.RoomID, user domain.UserDescriptor) {
	if roomID == "" || !domain.DescriptorPresent(user) {
		log.Warn().Str("module", "core.presence").Str("conn", string(id)).Msg("join rejected: roomId and user required")
		metrics.InvalidJoinsTotal.Inc()
		p.sendTo(id, protocol.EventError, protocol.ErrorReply{Message: "roomId and user are required"})
		return
	}

	// Leaving always broadcasts, even when immediately followed by a join.
	if old, ok := p.reg.RoomOf(id); ok {
		p.leaveRoom(id, old)
	}

	lk := p.roomLock(roomID)
	lk.Lock()
	defer lk.Unlock()

	p.reg.Bind(id, roomID)
	p.reg.SetUser(id, user)

	members := p.reg.MembersOf(roomID)
	count := len(members)

	p.broadcast(members, id, protocol.EventUserJoined, protocol.UserJoined{
		UserID:           string(id),
		User:             user,
		ParticipantCount: count,
	})

	participants := make([]protocol.Participant, 0, count-1)
	for _, m := range members {
		if m == id {
			continue
		}
		u, _ := p.reg.UserOf(m)
		participants = append(participants, protocol.Participant{UserID: string(m), User: u})
	}
	p.sendTo(id, protocol.EventJoined, protocol.Joined{
		RoomID:           string(roomID),
		Participants:     participants,
		ParticipantCount: count,
	})

	metrics.JoinsTotal.Inc()
	log.Info().Str("module", "core.presence").Str("conn", string(id)).Str("room", string(roomID)).Int("count", count).Msg("joined room")
}

// Leave unbinds the handle and notifies the remaining members. No-op when
// the handle is not a member anywhere.
func (p *Presence) Leave(id domain.ConnID) {
	if room, ok := p.reg.RoomOf(id); ok {
		p.leaveRoom(id, room)
	}
}

// Disconnect is invoked by the transport when the connection terminates for
// any reason. Idempotent with Leave: together they broadcast at most one
// departure.
func (p *Presence) Disconnect(id domain.ConnID) {
	p.Leave(id)
	p.reg.Deregister(id)
	metrics.DisconnectsTotal.Inc()
}

func (p *Presence) leaveRoom(id domain.ConnID, room domain.RoomID) {
	lk := p.roomLock(room)
	lk.Lock()
	defer lk.Unlock()

	// Membership may have changed while waiting for the room lock; a second
	// leave for the same membership must not broadcast again.
	if cur, ok := p.reg.RoomOf(id); !ok || cur != room {
		return
	}

	user, _ := p.reg.UserOf(id)
	p.reg.Unbind(id)

	members := p.reg.MembersOf(room)
	p.broadcast(members, "", protocol.EventUserLeft, protocol.UserLeft{
		UserID:           string(id),
		User:             user,
		ParticipantCount: len(members),
	})

	metrics.LeavesTotal.Inc()
	log.Info().Str("module", "core.presence").Str("conn", string(id)).Str("room", string(room)).Int("count", len(members)).Msg("left room")
}

// roomLock hands out the serialization mutex for a room, creating it on
// first use (double-checked, same shape as the registry's room sets).
func (p *Presence) roomLock(room domain.RoomID) *sync.Mutex {
	p.mu.RLock()
	lk, ok := p.locks[room]
	p.mu.RUnlock()
	if ok {
		return lk
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if lk, ok = p.locks[room]; !ok {
		lk = &sync.Mutex{}
		p.locks[room] = lk
	}
	return lk
}

// broadcast fans a notification out to every member except exclude.
// Delivery is fire-and-forget: a slow or gone member just misses the frame.
func (p *Presence) broadcast(members []domain.ConnID, exclude domain.ConnID, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.presence").Str("event", event).Msg("encode broadcast")
		return
	}
	for _, m := range members {
		if m == exclude {
			continue
		}
		sc, ok := p.reg.SignalOf(m)
		if !ok {
			continue
		}
		if err := sc.TrySend(frame); err != nil {
			metrics.BroadcastDroppedTotal.Inc()
			log.Warn().Str("module", "core.presence").Str("conn", string(m)).Str("event", event).Msg("broadcast dropped")
		}
	}
}

func (p *Presence) sendTo(id domain.ConnID, event string, payload any) {
	sc, ok := p.reg.SignalOf(id)
	if !ok {
		return
	}
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.presence").Str("event", event).Msg("encode reply")
		return
	}
	if err := sc.TrySend(frame); err != nil {
		log.Warn().Str("module", "core.presence").Str("conn", string(id)).Str("event", event).Msg("reply dropped")
	}
}
