package orchestrator

import (
	"sync"
)

// conversationLocks serializes reply turns per conversation so two
// near-simultaneous inbound messages cannot race on history reads or
// contact linking. Entries are refcounted and evicted on release, so the
// map holds locks only for conversations with a turn in flight.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// lock blocks until the conversation's turn slot is free.
func (c *conversationLocks) lock(conversationID string) {
	c.mu.Lock()
	entry, ok := c.locks[conversationID]
	if !ok {
		entry = &conversationLock{}
		c.locks[conversationID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()
}

// unlock releases the slot and drops the entry once no turn holds or waits
// on it.
func (c *conversationLocks) unlock(conversationID string) {
	c.mu.Lock()
	entry := c.locks[conversationID]
	entry.refs--
	if entry.refs == 0 {
		delete(c.locks, conversationID)
	}
	c.mu.Unlock()

	entry.mu.Unlock()
}

// size reports how many conversations currently hold an entry.
func (c *conversationLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
