package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/forgecommerce/catalog/internal/images"
)

// maxTrackedClients bounds the number of per-IP limiters kept in memory.
const maxTrackedClients = 10000

// refreshLimiter hands out one token bucket per client IP.
type refreshLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	rate    rate.Limit
	burst   int
}

func (l *refreshLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.clients.Get(ip); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	l.clients.Add(ip, lim)
	return lim
}

// RefreshLimiter limits, per client IP, requests that ask to bypass the image
// cache with force_refresh. Every such request re-lists and re-signs the
// product's images against object storage. Other requests pass through.
//
//	limited := middleware.RefreshLimiter(0.5, 5) // one forced refresh per 2s, burst 5
//	r.Use(limited)
func RefreshLimiter(perSecond float64, burst int) func(http.Handler) http.Handler {
	clients, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	l := &refreshLimiter{clients: clients, rate: rate.Limit(perSecond), burst: burst}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !images.ParseForceRefresh(r.URL.Query().Get("force_refresh")) {
				next.ServeHTTP(w, r)
				return
			}

			lim := l.limiter(extractIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))

			res := lim.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "force refresh rate limit exceeded")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, math.Floor(lim.Tokens())))))

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP retrieves the client IP from the request, preferring
// X-Forwarded-For and X-Real-IP headers (for reverse proxy setups),
// and falling back to RemoteAddr.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the leftmost IP, which is the original client.
		ip, _, _ := strings.Cut(xff, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
