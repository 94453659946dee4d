package xconn

import (
	"sync"
	"time"
)

// blacklistCooldown is the default cooldown period a target stays excluded
// from candidate lists after ResolverAdapter.Blacklist is called against it.
const blacklistCooldown = 30 * time.Second

// targetBlacklist is a TTL-based cooldown store for targets that recently
// failed to connect. It keeps a doubly-linked list plus a map:
// most-recently-blacklisted entries are pushed to the head, and expired
// entries are swept lazily by sweep on every add/contains instead of by a
// background goroutine.
type targetBlacklist struct {
	mu         sync.Mutex
	cooldown   time.Duration
	items      map[string]*blacklistItem
	head, tail *blacklistItem
}

type blacklistItem struct {
	key        string
	expiresAt  time.Time
	prev, next *blacklistItem
}

func newTargetBlacklist(cooldown time.Duration) *targetBlacklist {
	if cooldown <= 0 {
		cooldown = blacklistCooldown
	}
	head := new(blacklistItem)
	tail := new(blacklistItem)
	head.next = tail
	tail.prev = head
	return &targetBlacklist{
		cooldown: cooldown,
		items:    make(map[string]*blacklistItem),
		head:     head,
		tail:     tail,
	}
}

// add records target as blacklisted, resetting its cooldown if already present.
func (b *targetBlacklist) add(target Target) {
	key := target.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweep()
	if item, ok := b.items[key]; ok {
		b.unlink(item)
	}
	item := &blacklistItem{key: key, expiresAt: time.Now().Add(b.cooldown)}
	item.next = b.head.next
	item.prev = b.head
	b.head.next.prev = item
	b.head.next = item
	b.items[key] = item
}

// contains reports whether target is currently in cooldown.
func (b *targetBlacklist) contains(target Target) bool {
	key := target.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweep()
	_, ok := b.items[key]
	return ok
}

// sweep removes every entry whose cooldown has expired. Must be called
// with the mutex held.
func (b *targetBlacklist) sweep() {
	now := time.Now()
	item := b.head.next
	for item != b.tail {
		next := item.next
		if !now.Before(item.expiresAt) {
			b.unlink(item)
			delete(b.items, item.key)
		}
		item = next
	}
}

func (b *targetBlacklist) unlink(item *blacklistItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
}

func (b *targetBlacklist) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
