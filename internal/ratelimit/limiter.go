package ratelimit

import (
	"golang.org/x/time/rate"
)

// MessageLimiter caps how many frames one signaling connection may submit per
// second. The burst equals the per-second rate, so a client may send a full
// second's worth of messages at once after being idle.
//
// A nil *MessageLimiter allows everything.
type MessageLimiter struct {
	clock   Clock
	limiter *rate.Limiter
}

// NewMessageLimiter returns nil (unlimited) when perSecond <= 0.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if perSecond <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &MessageLimiter{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Allow consumes one token if available.
func (l *MessageLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.AllowN(l.clock.Now(), 1)
}
