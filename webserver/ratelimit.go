package webserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	log "github.com/sirupsen/logrus"
)

const visitorTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client address
type RateLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	perSecond  rate.Limit
	burst      int
	lastSweep  time.Time
	trustProxy bool
}

// NewRateLimiter returns nil, meaning unlimited, when perSecond is not
// positive. Clients are keyed by peer address; X-Real-IP and X-Forwarded-For
// are honoured only with trustProxy, for deployments behind a reverse proxy.
func NewRateLimiter(perSecond float64, burst int, trustProxy bool) *RateLimiter {

	if perSecond <= 0 {
		return nil
	}

	if burst <= 0 {
		burst = 1
	}

	return &RateLimiter{
		visitors:   make(map[string]*visitor),
		perSecond:  rate.Limit(perSecond),
		burst:      burst,
		lastSweep:  time.Now(),
		trustProxy: trustProxy,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		if rl == nil {
			next.ServeHTTP(w, r)
			return
		}

		client := clientID(r, rl.trustProxy)
		if !rl.allow(client) {
			log.WithField("Client", client).Debug("API rate limited")
			apiReturnJSON(w, http.StatusTooManyRequests, ApiError{http.StatusText(http.StatusTooManyRequests)})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(id string) bool {

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Sub(rl.lastSweep) > visitorTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.visitors[id] = v
	}
	v.lastSeen = now

	return v.limiter.Allow()
}

func clientID(r *http.Request, trustProxy bool) string {

	if trustProxy {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}

		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if parsed := net.ParseIP(first); parsed != nil {
				return parsed.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
