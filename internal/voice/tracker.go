package voice

import (
	"sync"
	"time"
)

// BillingMode selects how speaking time converts into the per-minute rate.
type BillingMode string

const (
	// BillingFinalState bills the whole session at the speaking rate when the
	// member was marked speaking at session end.
	BillingFinalState BillingMode = "final"
	// BillingTimeWeighted bills speaking minutes and idle minutes separately.
	BillingTimeWeighted BillingMode = "weighted"
)

const (
	speakingXPPerMinute = 2
	idleXPPerMinute     = 1
)

func ParseBillingMode(value string) BillingMode {
	if BillingMode(value) == BillingTimeWeighted {
		return BillingTimeWeighted
	}
	return BillingFinalState
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type session struct {
	joinedAt      time.Time
	speaking      bool
	speakingSince time.Time
	spokenFor     time.Duration
	stagedXP      int64
}

// Tracker holds open voice sessions keyed by guild and user. Sessions are
// in-memory only; one lost on restart is never billed.
type Tracker struct {
	mu       sync.Mutex
	clock    Clock
	sessions map[string]*session
}

func NewTracker() *Tracker {
	return &Tracker{
		clock:    realClock{},
		sessions: make(map[string]*session),
	}
}

func (t *Tracker) WithClock(clock Clock) {
	t.clock = clock
}

// StartSession records the join time. A second call for the same member
// overwrites the first; last join wins.
func (t *Tracker) StartSession(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[guildID+":"+userID] = &session{joinedAt: t.clock.Now()}
}

func (t *Tracker) UpdateSpeaking(guildID, userID string, speaking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := t.sessions[guildID+":"+userID]
	if item == nil || item.speaking == speaking {
		return
	}
	now := t.clock.Now()
	if speaking {
		item.speakingSince = now
	} else {
		item.spokenFor += now.Sub(item.speakingSince)
	}
	item.speaking = speaking
}

// StageXP adds XP to the open session, paid out on EndSession.
func (t *Tracker) StageXP(guildID, userID string, xp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if item := t.sessions[guildID+":"+userID]; item != nil {
		item.stagedXP += xp
	}
}

// EndSession closes the session and returns elapsed whole minutes and the XP
// earned under the given billing mode. Returns (0, 0) when no session
// exists, e.g. after a restart.
func (t *Tracker) EndSession(guildID, userID string, mode BillingMode) (minutes int64, xp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := guildID + ":" + userID
	item := t.sessions[key]
	if item == nil {
		return 0, 0
	}
	delete(t.sessions, key)

	now := t.clock.Now()
	minutes = int64(now.Sub(item.joinedAt).Minutes())

	switch mode {
	case BillingTimeWeighted:
		spoken := item.spokenFor
		if item.speaking {
			spoken += now.Sub(item.speakingSince)
		}
		speakingMinutes := int64(spoken.Minutes())
		if speakingMinutes > minutes {
			speakingMinutes = minutes
		}
		xp = speakingMinutes*speakingXPPerMinute + (minutes-speakingMinutes)*idleXPPerMinute
	default:
		rate := int64(idleXPPerMinute)
		if item.speaking {
			rate = speakingXPPerMinute
		}
		xp = minutes * rate
	}

	return minutes, xp + item.stagedXP
}

func (t *Tracker) IsInVoice(guildID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[guildID+":"+userID]
	return ok
}
