package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/domain"
)

type entry struct {
	signal SignalConnection
	room   domain.RoomID
	user   domain.UserDescriptor
}

// Registry is the in-memory bookkeeping for live connections: handle ->
// (transport, room, descriptor) plus the room -> member-set index. Both maps
// are mutated only inside one critical section per operation so the reverse
// index can never disagree with the room sets.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*entry
	rooms map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*entry),
		rooms: make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

// Register attaches a transport connection to a fresh handle.
func (r *Registry) Register(id domain.ConnID, sc SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &entry{signal: sc}
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("registered connection")
}

// Deregister forgets the handle entirely. If it is still bound to a room the
// set entry goes with it; broadcasting the departure is the coordinator's
// job, not the registry's.
func (r *Registry) Deregister(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok && e.room != "" {
		r.removeFromRoom(id, e.room)
	}
	delete(r.conns, id)
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("deregistered connection")
}

// Bind places the handle in a room, moving it out of any previous room set
// first. No-op for unknown handles.
func (r *Registry) Bind(id domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return
	}
	if e.room == room {
		return
	}
	if e.room != "" {
		r.removeFromRoom(id, e.room)
	}
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.rooms[room] = set
	}
	set[id] = struct{}{}
	e.room = room
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Str("room", string(room)).Msg("bound to room")
}

// Unbind removes the handle from its room, if any.
func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.room == "" {
		return
	}
	r.removeFromRoom(id, e.room)
	e.room = ""
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("unbound from room")
}

// removeFromRoom must be called with mu held.
func (r *Registry) removeFromRoom(id domain.ConnID, room domain.RoomID) {
	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) MembersOf(room domain.RoomID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[room]
	out := make([]domain.ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

func (r *Registry) UserOf(id domain.ConnID) (domain.UserDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.user == nil {
		return nil, false
	}
	return e.user, true
}

func (r *Registry) SetUser(id domain.ConnID, user domain.UserDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.user = user
	}
}

// SignalOf answers "is this handle still connected" for the relay.
func (r *Registry) SignalOf(id domain.ConnID) (SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.signal == nil {
		return nil, false
	}
	return e.signal, true
}

// RoomInfo is a read-only occupancy view for the HTTP API.
type RoomInfo struct {
	Room        domain.RoomID `json:"room"`
	MemberCount int           `json:"memberCount"`
}

func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for room, set := range r.rooms {
		out = append(out, RoomInfo{Room: room, MemberCount: len(set)})
	}
	return out
}
