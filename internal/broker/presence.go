package broker

// presenceRegistry maps users to their active connections. A user may hold
// several connections at once (tabs, devices); online/offline is derived
// from set cardinality, never tracked as its own flag. The connection ->
// user back-reference makes disconnect cleanup O(1) instead of a scan.
type presenceRegistry struct {
	userConns map[string]map[string]bool // userId -> set(connectionId)
	connUser  map[string]string          // connectionId -> userId
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{
		userConns: map[string]map[string]bool{},
		connUser:  map[string]string{},
	}
}

// announce attributes connID to userID and reports whether the user just
// came online (first connection). Announcing the same pair twice is a no-op.
func (p *presenceRegistry) announce(userID, connID string) bool {
	if p.connUser[connID] == userID {
		return false
	}
	conns, ok := p.userConns[userID]
	if !ok {
		conns = map[string]bool{}
		p.userConns[userID] = conns
	}
	conns[connID] = true
	p.connUser[connID] = userID
	return len(conns) == 1
}

// remove detaches connID from its owning user, reporting the user and
// whether that was their last connection (offline transition). Unknown
// connection ids are a no-op: disconnects race with other cleanup, so
// "already gone" is normal, not an error.
func (p *presenceRegistry) remove(connID string) (string, bool) {
	userID, ok := p.connUser[connID]
	if !ok {
		return "", false
	}
	delete(p.connUser, connID)
	conns := p.userConns[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(p.userConns, userID)
		return userID, true
	}
	return userID, false
}

// owner returns the user currently attributed to connID, if any.
func (p *presenceRegistry) owner(connID string) (string, bool) {
	userID, ok := p.connUser[connID]
	return userID, ok
}

func (p *presenceRegistry) isOnline(userID string) bool {
	return len(p.userConns[userID]) > 0
}

func (p *presenceRegistry) onlineCount() int {
	return len(p.userConns)
}
