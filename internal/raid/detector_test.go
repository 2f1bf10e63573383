package raid

import (
	"sync"
	"testing"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

func TestMassJoinTriggersAtThreshold(t *testing.T) {
	var started []State
	var mu sync.Mutex
	d := New(func(g platform.GuildID, s State) {
		mu.Lock()
		started = append(started, s)
		mu.Unlock()
	}, nil)

	guild := platform.GuildID(1)
	now := time.Now()
	newAccount := now.Add(-time.Hour)

	for i := 0; i < joinThreshold-1; i++ {
		d.RecordJoin(guild, platform.UserID(i), newAccount, now)
	}
	if d.Get(guild).Active {
		t.Fatal("raid mode should not be active below threshold")
	}

	d.RecordJoin(guild, platform.UserID(99), newAccount, now)
	state := d.Get(guild)
	if !state.Active || state.Trigger != TriggerMassJoin {
		t.Fatalf("expected MassJoin raid mode, got %+v", state)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(started) == 0 {
		t.Fatal("expected onStart to fire")
	}
}

func TestMassJoinIgnoresOldAccounts(t *testing.T) {
	d := New(nil, nil)
	guild := platform.GuildID(1)
	now := time.Now()
	oldAccount := now.Add(-30 * 24 * time.Hour)

	for i := 0; i < joinThreshold+2; i++ {
		d.RecordJoin(guild, platform.UserID(i), oldAccount, now)
	}
	if d.Get(guild).Active {
		t.Fatal("old accounts joining should not trigger raid mode")
	}
}

func TestMassJoinWindowExpires(t *testing.T) {
	d := New(nil, nil)
	guild := platform.GuildID(1)
	base := time.Now()
	newAccount := base.Add(-time.Hour)

	for i := 0; i < joinThreshold-1; i++ {
		d.RecordJoin(guild, platform.UserID(i), newAccount, base)
	}
	// This join lands outside the 60s window of the earlier ones.
	later := base.Add(61 * time.Second)
	d.RecordJoin(guild, platform.UserID(999), newAccount, later)

	if d.Get(guild).Active {
		t.Fatal("joins spread beyond the window should not trigger raid mode")
	}
}

func TestMessageFloodRequiresDistinctUsers(t *testing.T) {
	d := New(nil, nil)
	guild := platform.GuildID(1)
	now := time.Now()
	const hash = uint64(12345)

	for i := 0; i < floodThreshold+5; i++ {
		d.RecordMessage(guild, hash, platform.UserID(1), now)
	}
	if d.Get(guild).Active {
		t.Fatal("single-user repeated hash should not trigger MessageFlood (spec anti-loop guard)")
	}
}

func TestMessageFloodTriggersWithDistinctUsers(t *testing.T) {
	d := New(nil, nil)
	guild := platform.GuildID(1)
	now := time.Now()
	const hash = uint64(12345)

	for i := 0; i < floodThreshold; i++ {
		d.RecordMessage(guild, hash, platform.UserID(i%2), now)
	}
	state := d.Get(guild)
	if !state.Active || state.Trigger != TriggerMessageFlood {
		t.Fatalf("expected MessageFlood raid mode, got %+v", state)
	}
}

func TestSweepDeactivatesExpiredRaid(t *testing.T) {
	var ended []platform.GuildID
	d := New(nil, func(g platform.GuildID) { ended = append(ended, g) })
	guild := platform.GuildID(1)
	now := time.Now()
	newAccount := now.Add(-time.Hour)
	for i := 0; i < joinThreshold; i++ {
		d.RecordJoin(guild, platform.UserID(i), newAccount, now)
	}
	if !d.Get(guild).Active {
		t.Fatal("setup: expected raid mode active")
	}

	d.Sweep(now.Add(activeDuration + time.Second))
	if d.Get(guild).Active {
		t.Fatal("expected raid mode deactivated after expiry sweep")
	}
	if len(ended) != 1 || ended[0] != guild {
		t.Fatalf("expected onEnd to fire once for guild, got %+v", ended)
	}
}

func TestDisableIsImmediate(t *testing.T) {
	var ended int
	d := New(nil, func(platform.GuildID) { ended++ })
	guild := platform.GuildID(1)
	now := time.Now()
	newAccount := now.Add(-time.Hour)
	for i := 0; i < joinThreshold; i++ {
		d.RecordJoin(guild, platform.UserID(i), newAccount, now)
	}

	d.Disable(guild)
	if d.Get(guild).Active {
		t.Fatal("expected immediate deactivation")
	}
	if ended != 1 {
		t.Fatalf("expected onEnd fired once, got %d", ended)
	}

	// Disabling an already-inactive guild must not re-fire onEnd.
	d.Disable(guild)
	if ended != 1 {
		t.Fatalf("expected onEnd not to fire on redundant disable, got %d", ended)
	}
}

func TestRetriggerWhileActiveRefreshesExpiry(t *testing.T) {
	d := New(nil, nil)
	guild := platform.GuildID(1)
	now := time.Now()
	newAccount := now.Add(-time.Hour)
	for i := 0; i < joinThreshold; i++ {
		d.RecordJoin(guild, platform.UserID(i), newAccount, now)
	}
	first := d.Get(guild).ExpiresAt

	later := now.Add(5 * time.Minute)
	for i := 0; i < joinThreshold; i++ {
		d.RecordJoin(guild, platform.UserID(1000+i), newAccount, later)
	}
	second := d.Get(guild).ExpiresAt

	if !second.After(first) {
		t.Fatalf("expected expiry to refresh on retrigger: first=%v second=%v", first, second)
	}
}

func TestHashMessageSaltChangesHash(t *testing.T) {
	a := HashMessage("salt1", "hello world")
	b := HashMessage("salt2", "hello world")
	if a == b {
		t.Fatal("expected different salts to produce different hashes")
	}
	if HashMessage("salt1", "hello world") != a {
		t.Fatal("expected HashMessage to be deterministic for the same input")
	}
}

func TestCrossGuildIsolation(t *testing.T) {
	d := New(nil, nil)
	g1, g2 := platform.GuildID(1), platform.GuildID(2)
	now := time.Now()
	newAccount := now.Add(-time.Hour)

	for i := 0; i < joinThreshold; i++ {
		d.RecordJoin(g1, platform.UserID(i), newAccount, now)
	}
	if d.Get(g1).Active == d.Get(g2).Active && d.Get(g2).Active {
		t.Fatal("raid mode leaked across guilds")
	}
	if !d.Get(g1).Active || d.Get(g2).Active {
		t.Fatalf("expected isolation: g1=%+v g2=%+v", d.Get(g1), d.Get(g2))
	}
}
