package strategy

import (
	"log/slog"
	"time"

	"signal-servicev1/internal/model"
)

// ValidateSignal reports whether a signal for (symbol, direction) may be
// emitted now. The first call for a key always passes and arms the timer;
// later calls pass only once the cooldown window has elapsed, re-arming the
// timer on every pass. Scoring still runs while suppressed — this gates
// emission only.
func (s *Scorer) ValidateSignal(symbol string, dir model.Direction) bool {
	window := time.Duration(s.params.CooldownMinutes) * time.Minute
	key := symbol + "_" + string(dir)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	last, seen := s.lastEmit[key]
	if !seen || now.Sub(last) > window {
		s.lastEmit[key] = now
		return true
	}

	remaining := window - now.Sub(last)
	s.log.Info("signal suppressed by cooldown",
		slog.String("key", key),
		slog.Duration("remaining", remaining))
	return false
}
