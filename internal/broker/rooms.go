package broker

// roomRegistry groups connections by the conversation they are viewing so
// fan-out is O(members) rather than O(all connections). Rooms exist only
// while they have members; empty entries are pruned on leave.
type roomRegistry struct {
	roomConns map[string]map[string]bool // conversationId -> set(connectionId)
	connRooms map[string]map[string]bool // connectionId -> set(conversationId)
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{
		roomConns: map[string]map[string]bool{},
		connRooms: map[string]map[string]bool{},
	}
}

// join adds connID to the conversation's room. Joining twice is idempotent.
func (r *roomRegistry) join(connID, convID string) {
	if _, ok := r.roomConns[convID]; !ok {
		r.roomConns[convID] = map[string]bool{}
	}
	r.roomConns[convID][connID] = true

	if _, ok := r.connRooms[connID]; !ok {
		r.connRooms[connID] = map[string]bool{}
	}
	r.connRooms[connID][convID] = true
}

// leave removes connID from the room. Leaving a room never joined is a no-op.
func (r *roomRegistry) leave(connID, convID string) {
	if conns, ok := r.roomConns[convID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.roomConns, convID)
		}
	}
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, convID)
		if len(rooms) == 0 {
			delete(r.connRooms, connID)
		}
	}
}

// leaveAll clears every membership of connID, used on disconnect.
func (r *roomRegistry) leaveAll(connID string) {
	for convID := range r.connRooms[connID] {
		conns := r.roomConns[convID]
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.roomConns, convID)
		}
	}
	delete(r.connRooms, connID)
}

// contains reports whether connID is currently joined to the room.
func (r *roomRegistry) contains(convID, connID string) bool {
	return r.roomConns[convID][connID]
}

// members returns the connection ids currently joined to the room.
func (r *roomRegistry) members(convID string) []string {
	conns := r.roomConns[convID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}
