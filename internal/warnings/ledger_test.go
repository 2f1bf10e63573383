package warnings

import (
	"testing"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

const guild = platform.GuildID(1)
const user = platform.UserID(1)

func TestRecordViolationEscalatesThroughLadder(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)

	want := []Level{Warn, ShortTimeout, LongTimeout, Kick}
	for i, w := range want {
		got := l.RecordViolation(guild, user, "r", platform.MessageID(i))
		if got != w {
			t.Fatalf("violation %d: want %v, got %v", i, w, got)
		}
	}
	rec, ok := l.Get(guild, user)
	if !ok || !rec.KickedBefore {
		t.Fatalf("expected kicked_before=true at Kick, got %+v", rec)
	}
}

func TestRecordViolationAfterKickGoesStraightToBan(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)
	for i := 0; i < 4; i++ {
		l.RecordViolation(guild, user, "r", platform.MessageID(i))
	}
	got := l.RecordViolation(guild, user, "r", platform.MessageID(99))
	if got != Ban {
		t.Fatalf("expected Ban after a kicked user violates again, got %v", got)
	}
}

func TestBanIsTerminalUntilClear(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)
	for i := 0; i < 5; i++ {
		l.RecordViolation(guild, user, "r", platform.MessageID(i))
	}
	rec, _ := l.Get(guild, user)
	if rec.Level != Ban {
		t.Fatalf("expected Ban, got %v", rec.Level)
	}
	// Even after a long decay interval, kicked_before keeps the user on
	// the "next violation -> Ban" path, and Ban itself never decays past
	// the Level>None decay loop silently reviving a banned user's access.
	clock.advance(72 * time.Hour)

	// Crucially, a Get() in the gap before the next violation must still
	// report Ban: it must never be observed as having silently decayed
	// back down while no explicit Clear has happened.
	gapRec, ok := l.Get(guild, user)
	if !ok || gapRec.Level != Ban {
		t.Fatalf("expected Ban to still be observed mid-gap, got %+v ok=%v", gapRec, ok)
	}

	got := l.RecordViolation(guild, user, "r", platform.MessageID(50))
	if got != Ban {
		t.Fatalf("expected Ban to remain terminal, got %v", got)
	}

	l.Clear(guild, user)
	rec, ok := l.Get(guild, user)
	if ok {
		t.Fatalf("expected Clear to remove the record, got %+v", rec)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	l := NewLedger()
	l.Clear(guild, user)
	l.Clear(guild, user)
}

func TestDecayDropsOneStepPer24Hours(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)
	l.RecordViolation(guild, user, "r", platform.MessageID(1))
	l.RecordViolation(guild, user, "r", platform.MessageID(2))
	rec, _ := l.Get(guild, user)
	if rec.Level != ShortTimeout {
		t.Fatalf("setup: want ShortTimeout, got %v", rec.Level)
	}

	clock.advance(24 * time.Hour)
	l.DecayTick(clock.Now())
	rec, _ = l.Get(guild, user)
	if rec.Level != Warn {
		t.Fatalf("after 24h decay: want Warn, got %v", rec.Level)
	}

	clock.advance(24 * time.Hour)
	l.DecayTick(clock.Now())
	rec, ok := l.Get(guild, user)
	if ok && rec.Level != None {
		t.Fatalf("after 48h total decay: want None, got %v (present=%v)", rec.Level, ok)
	}
}

func TestDecayMultipleStepsFromLongInactivity(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)
	for i := 0; i < 3; i++ {
		l.RecordViolation(guild, user, "r", platform.MessageID(i))
	}
	rec, _ := l.Get(guild, user)
	if rec.Level != LongTimeout {
		t.Fatalf("setup: want LongTimeout, got %v", rec.Level)
	}

	clock.advance(72 * time.Hour) // 3 full decay periods
	l.DecayTick(clock.Now())
	rec, ok := l.Get(guild, user)
	if ok {
		t.Fatalf("expected level to fully decay to None (and be swept), got %+v", rec)
	}
}

func TestMonotonicNonDecreasingWithinActiveWindow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLedgerWithClock(clock)

	var prev Level = None
	for i := 0; i < 4; i++ {
		clock.advance(time.Hour) // stays within the 24h window
		got := l.RecordViolation(guild, user, "r", platform.MessageID(i))
		if got < prev {
			t.Fatalf("level decreased within 24h active window: %v -> %v", prev, got)
		}
		prev = got
	}
}
