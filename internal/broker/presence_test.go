package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnounceFirstConnectionIsTransition(t *testing.T) {
	p := newPresenceRegistry()

	assert.True(t, p.announce("alice", "c1"), "first connection should be an online transition")
	assert.False(t, p.announce("alice", "c2"), "second device is not a transition")
	assert.True(t, p.isOnline("alice"))
	assert.Equal(t, 1, p.onlineCount())
}

func TestAnnounceIdempotent(t *testing.T) {
	p := newPresenceRegistry()

	assert.True(t, p.announce("alice", "c1"))
	assert.False(t, p.announce("alice", "c1"), "re-announcing the same pair must not transition")
	assert.True(t, p.isOnline("alice"))

	user, offline := p.remove("c1")
	assert.Equal(t, "alice", user)
	assert.True(t, offline, "single registration must mean a single removal goes offline")
}

func TestRemoveNonLastConnectionKeepsUserOnline(t *testing.T) {
	p := newPresenceRegistry()
	p.announce("alice", "c1")
	p.announce("alice", "c2")

	user, offline := p.remove("c1")
	assert.Equal(t, "alice", user)
	assert.False(t, offline)
	assert.True(t, p.isOnline("alice"))

	user, offline = p.remove("c2")
	assert.Equal(t, "alice", user)
	assert.True(t, offline)
	assert.False(t, p.isOnline("alice"))
	assert.Equal(t, 0, p.onlineCount())
}

func TestRemoveUnknownConnectionIsNoop(t *testing.T) {
	p := newPresenceRegistry()
	p.announce("alice", "c1")

	user, offline := p.remove("nope")
	assert.Empty(t, user)
	assert.False(t, offline)
	assert.True(t, p.isOnline("alice"))

	// removing twice: second call sees an already-gone connection
	p.remove("c1")
	user, offline = p.remove("c1")
	assert.Empty(t, user)
	assert.False(t, offline)
}

func TestOwnerBackReference(t *testing.T) {
	p := newPresenceRegistry()
	p.announce("alice", "c1")

	user, ok := p.owner("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	_, ok = p.owner("c2")
	assert.False(t, ok)
}
