package voice

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func TestFinalStateBilling(t *testing.T) {
	start := time.Unix(0, 0)
	tracker := NewTracker()
	tracker.WithClock(fakeClock{now: start})

	tracker.StartSession("g1", "u1")
	tracker.UpdateSpeaking("g1", "u1", true)

	tracker.WithClock(fakeClock{now: start.Add(10 * time.Minute)})
	minutes, xp := tracker.EndSession("g1", "u1", BillingFinalState)
	if minutes != 10 {
		t.Fatalf("expected 10 minutes, got %d", minutes)
	}
	if xp != 20 {
		t.Fatalf("expected 20 xp while speaking, got %d", xp)
	}
}

func TestFinalStateBillingIdle(t *testing.T) {
	start := time.Unix(0, 0)
	tracker := NewTracker()
	tracker.WithClock(fakeClock{now: start})

	tracker.StartSession("g1", "u1")

	tracker.WithClock(fakeClock{now: start.Add(10 * time.Minute)})
	minutes, xp := tracker.EndSession("g1", "u1", BillingFinalState)
	if minutes != 10 || xp != 10 {
		t.Fatalf("expected 10 minutes and 10 xp idle, got %d and %d", minutes, xp)
	}
}

func TestTimeWeightedBilling(t *testing.T) {
	start := time.Unix(0, 0)
	tracker := NewTracker()
	tracker.WithClock(fakeClock{now: start})

	tracker.StartSession("g1", "u1")
	tracker.UpdateSpeaking("g1", "u1", true)

	tracker.WithClock(fakeClock{now: start.Add(4 * time.Minute)})
	tracker.UpdateSpeaking("g1", "u1", false)

	tracker.WithClock(fakeClock{now: start.Add(10 * time.Minute)})
	minutes, xp := tracker.EndSession("g1", "u1", BillingTimeWeighted)
	if minutes != 10 {
		t.Fatalf("expected 10 minutes, got %d", minutes)
	}
	if xp != 4*2+6*1 {
		t.Fatalf("expected 14 xp, got %d", xp)
	}
}

func TestEndSessionWithoutStart(t *testing.T) {
	tracker := NewTracker()
	minutes, xp := tracker.EndSession("g1", "u1", BillingFinalState)
	if minutes != 0 || xp != 0 {
		t.Fatalf("expected zeros without a session, got %d and %d", minutes, xp)
	}
}

func TestStagedXP(t *testing.T) {
	start := time.Unix(0, 0)
	tracker := NewTracker()
	tracker.WithClock(fakeClock{now: start})

	tracker.StartSession("g1", "u1")
	tracker.StageXP("g1", "u1", 25)

	tracker.WithClock(fakeClock{now: start.Add(2 * time.Minute)})
	_, xp := tracker.EndSession("g1", "u1", BillingFinalState)
	if xp != 2+25 {
		t.Fatalf("expected 27 xp including staged, got %d", xp)
	}
}

func TestLastJoinWins(t *testing.T) {
	start := time.Unix(0, 0)
	tracker := NewTracker()
	tracker.WithClock(fakeClock{now: start})

	tracker.StartSession("g1", "u1")
	tracker.WithClock(fakeClock{now: start.Add(5 * time.Minute)})
	tracker.StartSession("g1", "u1")

	tracker.WithClock(fakeClock{now: start.Add(8 * time.Minute)})
	minutes, _ := tracker.EndSession("g1", "u1", BillingFinalState)
	if minutes != 3 {
		t.Fatalf("expected 3 minutes after rejoin, got %d", minutes)
	}
	if tracker.IsInVoice("g1", "u1") {
		t.Fatalf("session should be closed")
	}
}
