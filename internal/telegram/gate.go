package telegram

import (
	"sync"
	"time"
)

// GateStats is a snapshot of one bot's recovery attempt history.
type GateStats struct {
	AttemptsLastHour int       `json:"attempts_last_hour"`
	LastAttemptAt    time.Time `json:"last_attempt_at,omitzero"`
	InCooldown       bool      `json:"in_cooldown"`
}

// RecoveryGate rate-limits webhook recovery attempts per bot identity. An
// attempt is allowed when the cooldown since the last attempt has elapsed and
// the hourly attempt budget is not exhausted. State is process-local.
type RecoveryGate struct {
	mu       sync.Mutex
	attempts map[BotID][]time.Time

	cooldown   time.Duration
	maxPerHour int
	now        func() time.Time
}

// NewRecoveryGate creates a gate with the given cooldown and hourly budget.
func NewRecoveryGate(cooldown time.Duration, maxPerHour int) *RecoveryGate {
	return &RecoveryGate{
		attempts:   make(map[BotID][]time.Time),
		cooldown:   cooldown,
		maxPerHour: maxPerHour,
		now:        time.Now,
	}
}

// Allow reports whether a recovery attempt for the bot may proceed now.
// It does not record the attempt; call Record once the attempt is made.
func (g *RecoveryGate) Allow(id BotID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	recent := g.prune(id, now)

	if len(recent) >= g.maxPerHour {
		return false
	}
	if len(recent) > 0 && now.Sub(recent[len(recent)-1]) < g.cooldown {
		return false
	}
	return true
}

// Record notes that a recovery attempt was made for the bot.
func (g *RecoveryGate) Record(id BotID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.attempts[id] = append(g.prune(id, now), now)
}

// Stats returns a snapshot of the bot's attempt history.
func (g *RecoveryGate) Stats(id BotID) GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	recent := g.prune(id, now)

	stats := GateStats{AttemptsLastHour: len(recent)}
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		stats.LastAttemptAt = last
		stats.InCooldown = now.Sub(last) < g.cooldown
	}
	if len(recent) >= g.maxPerHour {
		stats.InCooldown = true
	}
	return stats
}

// prune drops attempts older than one hour and stores the result.
// Caller must hold the mutex.
func (g *RecoveryGate) prune(id BotID, now time.Time) []time.Time {
	cutoff := now.Add(-time.Hour)
	kept := g.attempts[id][:0]
	for _, t := range g.attempts[id] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.attempts[id] = kept
	return kept
}
