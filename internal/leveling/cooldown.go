package leveling

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// cooldownTracker remembers the last XP-granting message per (guild, user).
type cooldownTracker struct {
	mu    sync.Mutex
	clock Clock
	last  map[string]time.Time
}

func newCooldownTracker(clock Clock) *cooldownTracker {
	return &cooldownTracker{clock: clock, last: make(map[string]time.Time)}
}

func (t *cooldownTracker) OnCooldown(guildID, userID string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped, ok := t.last[guildID+":"+userID]
	if !ok {
		return false
	}
	return t.clock.Now().Sub(stamped) < window
}

func (t *cooldownTracker) Stamp(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[guildID+":"+userID] = t.clock.Now()
}
