package handshake

import "time"

// Local, per-connection severity classification for protocol
// violations. This is not the reputation aggregator (out of scope):
// it only decides how harshly to treat a single connection.
const (
	BanThreshold       = 100
	ThrottleThreshold  = 50
	BanDurationDefault = 24 * time.Hour

	banScoreDecaysPerMinute = 1
)

type BanScore struct {
	score       int
	lastUpdated time.Time
}

func (b *BanScore) Score(now time.Time) int {
	b.decayTo(now)
	return b.score
}

func (b *BanScore) Add(now time.Time, delta int) int {
	b.decayTo(now)
	b.score += delta
	if b.score < 0 {
		b.score = 0
	}
	return b.score
}

func (b *BanScore) ShouldBan(now time.Time) bool {
	return b.Score(now) >= BanThreshold
}

func (b *BanScore) ShouldThrottle(now time.Time) bool {
	return b.Score(now) >= ThrottleThreshold
}

func (b *BanScore) decayTo(now time.Time) {
	if b.lastUpdated.IsZero() {
		b.lastUpdated = now
		return
	}
	if now.Before(b.lastUpdated) {
		b.lastUpdated = now
		return
	}
	minutes := int(now.Sub(b.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	b.score -= minutes * banScoreDecaysPerMinute
	if b.score < 0 {
		b.score = 0
	}
	b.lastUpdated = now
}

// ReasonBanDelta is the severity delta a termination reason
// contributes to a connection's BanScore.
func ReasonBanDelta(r Reason) int {
	switch r {
	case ReasonCodecViolation:
		return 10
	case ReasonOutOfLanes, ReasonServiceNotFound, ReasonInsufficientBalance:
		return 0
	default:
		return 5
	}
}
