package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Broker owns the in-memory realtime state: which connections exist, which
// user each one belongs to, and which conversation rooms they are joined to.
// All inbound events funnel through one loop goroutine, so within a room
// events are delivered in the order they were processed. The mutex exists
// for readers outside the loop (health endpoints, tests), not for the
// handlers themselves.
type Broker struct {
	mu sync.RWMutex

	clients  map[string]*Client // connection id -> client
	presence *presenceRegistry
	rooms    *roomRegistry

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	log     zerolog.Logger
	started time.Time
}

type inbound struct {
	client *Client
	event  string
	data   json.RawMessage
}

func New(log zerolog.Logger) *Broker {
	return &Broker{
		clients:    map[string]*Client{},
		presence:   newPresenceRegistry(),
		rooms:      newRoomRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		done:       make(chan struct{}),
		log:        log,
		started:    time.Now(),
	}
}

// Register hands a freshly attached client to the loop. A no-op once the
// loop has exited.
func (b *Broker) Register(c *Client) {
	select {
	case b.register <- c:
	case <-b.done:
	}
}

// Unregister tears a client down. Safe to call more than once for the same
// client, and after shutdown: read pumps and handler defers still fire when
// closeAll drops the connections, and must not block on a stopped loop.
func (b *Broker) Unregister(c *Client) {
	select {
	case b.unregister <- c:
	case <-b.done:
	}
}

// Dispatch queues one decoded wire event for the loop. A no-op once the
// loop has exited.
func (b *Broker) Dispatch(c *Client, event string, data json.RawMessage) {
	select {
	case b.inbound <- inbound{client: c, event: event, data: data}:
	case <-b.done:
	}
}

// Run processes events until ctx is cancelled, then drains whatever is
// already queued, closes every connection and exits. There is no fatal
// error path: malformed client input is dropped, never escalated.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.closeAll()
			close(b.done)
			return
		case c := <-b.register:
			b.handleRegister(c)
		case c := <-b.unregister:
			b.handleUnregister(c)
		case ev := <-b.inbound:
			b.handleInbound(ev)
		}
	}
}

// Wait blocks until Run has returned.
func (b *Broker) Wait() { <-b.done }

func (b *Broker) drain() {
	for {
		select {
		case ev := <-b.inbound:
			b.handleInbound(ev)
		default:
			return
		}
	}
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		_ = c.Conn.Close()
		close(c.Send)
	}
	b.clients = map[string]*Client{}
	b.presence = newPresenceRegistry()
	b.rooms = newRoomRegistry()
}

func (b *Broker) handleRegister(c *Client) {
	b.mu.Lock()
	b.clients[c.Id] = c
	total := len(b.clients)
	b.mu.Unlock()
	b.log.Info().Str("conn", c.Id).Int("connections", total).Msg("client connected")
}

func (b *Broker) handleUnregister(c *Client) {
	b.mu.Lock()
	if _, ok := b.clients[c.Id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, c.Id)
	b.rooms.leaveAll(c.Id)
	userID, wentOffline := b.presence.remove(c.Id)
	remaining := b.presence.onlineCount()
	b.mu.Unlock()

	// The loop is the only sender on c.Send and the client is out of the
	// maps now, so closing here ends the write pump immediately.
	close(c.Send)

	if wentOffline {
		b.broadcastAll(EventUserStatus, &StatusPayload{UserID: userID, Status: StatusOffline})
		b.log.Info().Str("user", userID).Int("online", remaining).Msg("user went offline")
	}
	b.log.Info().Str("conn", c.Id).Msg("client disconnected")
}

func (b *Broker) handleInbound(ev inbound) {
	switch ev.event {
	case EventUserOnline:
		b.handleUserOnline(ev.client, ev.data)
	case EventJoin:
		b.handleJoin(ev.client, ev.data)
	case EventLeave:
		b.handleLeave(ev.client, ev.data)
	case EventMessageSend:
		b.handleMessageSend(ev.client, ev.data)
	case EventTypingStart, EventTypingStop:
		b.handleTyping(ev.client, ev.event, ev.data)
	case EventMessagesRead:
		b.handleMessagesRead(ev.client, ev.data)
	default:
		b.log.Debug().Str("conn", ev.client.Id).Str("event", ev.event).Msg("unknown event dropped")
	}
}

func (b *Broker) handleUserOnline(c *Client, data json.RawMessage) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil || userID == "" {
		b.log.Debug().Str("conn", c.Id).Msg("malformed user:online payload dropped")
		return
	}

	b.mu.Lock()
	// A connection belongs to at most one user. Re-announcing under a new
	// identity detaches the old attribution first.
	var prevUser string
	var prevOffline bool
	if owner, ok := b.presence.owner(c.Id); ok && owner != userID {
		prevUser, prevOffline = b.presence.remove(c.Id)
	}
	cameOnline := b.presence.announce(userID, c.Id)
	online := b.presence.onlineCount()
	b.mu.Unlock()

	if prevOffline {
		b.broadcastAll(EventUserStatus, &StatusPayload{UserID: prevUser, Status: StatusOffline})
	}
	if cameOnline {
		b.broadcastAll(EventUserStatus, &StatusPayload{UserID: userID, Status: StatusOnline})
		b.log.Info().Str("user", userID).Int("online", online).Msg("user came online")
	}
}

func (b *Broker) handleJoin(c *Client, data json.RawMessage) {
	convID, ok := decodeConversationID(data)
	if !ok {
		b.log.Debug().Str("conn", c.Id).Msg("malformed conversation:join payload dropped")
		return
	}
	b.mu.Lock()
	b.rooms.join(c.Id, convID)
	b.mu.Unlock()
	b.log.Debug().Str("conn", c.Id).Str("conversation", convID).Msg("joined conversation")
}

func (b *Broker) handleLeave(c *Client, data json.RawMessage) {
	convID, ok := decodeConversationID(data)
	if !ok {
		b.log.Debug().Str("conn", c.Id).Msg("malformed conversation:leave payload dropped")
		return
	}
	b.mu.Lock()
	b.rooms.leave(c.Id, convID)
	b.mu.Unlock()
	b.log.Debug().Str("conn", c.Id).Str("conversation", convID).Msg("left conversation")
}

func (b *Broker) handleMessageSend(c *Client, data json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" || len(p.Message) == 0 {
		b.log.Debug().Str("conn", c.Id).Msg("malformed message:send payload dropped")
		return
	}
	// The caller already persisted the message; this is only the live
	// fan-out. Senders must be joined to the room they emit into.
	if delivered := b.relayToRoom(c, p.ConversationID, EventMessageNew, p.Message); delivered >= 0 {
		b.log.Debug().Str("conversation", p.ConversationID).Int("recipients", delivered).Msg("message routed")
	}
}

func (b *Broker) handleTyping(c *Client, event string, data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		b.log.Debug().Str("conn", c.Id).Str("event", event).Msg("malformed typing payload dropped")
		return
	}
	b.relayToRoom(c, p.ConversationID, event, p.User)
}

func (b *Broker) handleMessagesRead(c *Client, data json.RawMessage) {
	var p ReadPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" || p.UserID == "" {
		b.log.Debug().Str("conn", c.Id).Msg("malformed messages:read payload dropped")
		return
	}
	b.relayToRoom(c, p.ConversationID, EventMessagesRead, &ReadSignal{UserID: p.UserID})
}

// relayToRoom fans an event out to every room member except the sender.
// Returns the recipient count, or -1 when the sender is not a member of the
// room (the event is dropped; joining is how the API layer's authorization
// reaches this process). Best effort: a recipient with a full send buffer
// is skipped, it will catch up from the persisted store.
func (b *Broker) relayToRoom(sender *Client, convID, event string, payload any) int {
	b.mu.RLock()
	if !b.rooms.contains(convID, sender.Id) {
		b.mu.RUnlock()
		b.log.Debug().Str("conn", sender.Id).Str("conversation", convID).Str("event", event).
			Msg("relay from non-member dropped")
		return -1
	}
	ids := b.rooms.members(convID)
	targets := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if id == sender.Id {
			continue
		}
		if c, ok := b.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	data, err := encodeEnvelope(event, payload)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return 0
	}
	for _, c := range targets {
		c.trySend(data)
	}
	return len(targets)
}

// broadcastAll emits an event to every connected client. Presence is public
// within the application, so status changes are not room-scoped.
func (b *Broker) broadcastAll(event string, payload any) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()
	for _, c := range targets {
		c.trySend(data)
	}
}

// ConnectionCount reports the number of attached connections.
func (b *Broker) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// OnlineUserCount reports the number of users with at least one connection.
func (b *Broker) OnlineUserCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.presence.onlineCount()
}

// IsOnline reports whether the user has at least one active connection.
func (b *Broker) IsOnline(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.presence.isOnline(userID)
}

// Uptime reports how long this broker has been running.
func (b *Broker) Uptime() time.Duration {
	return time.Since(b.started)
}

func decodeConversationID(data json.RawMessage) (string, bool) {
	var convID string
	if err := json.Unmarshal(data, &convID); err != nil || convID == "" {
		return "", false
	}
	return convID, true
}
