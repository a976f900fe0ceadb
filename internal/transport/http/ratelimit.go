package http

import "golang.org/x/time/rate"

// frameLimiter throttles inbound websocket frames for one connection.
type frameLimiter struct {
	lim *rate.Limiter
}

func newFrameLimiter(perSecond float64, burst int) *frameLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &frameLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (f *frameLimiter) allow() bool {
	if f == nil {
		return true
	}
	return f.lim.Allow()
}
