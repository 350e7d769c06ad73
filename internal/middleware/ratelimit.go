package middleware

import (
	"net/http"
	"sync"
	"time"
)

const rateLimitWindow = time.Minute

// rateLimiter — скользящее окно по ключу (IP или user_id).
type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	calls  int
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)

	// Периодическая чистка давно молчащих ключей, иначе карта растёт вечно.
	r.calls++
	if r.calls%4096 == 0 {
		for k, ts := range r.times {
			if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
				delete(r.times, k)
			}
		}
	}

	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		return x
	}
	return r.RemoteAddr
}

// RateLimitIP ограничивает запросы по IP вызывающего. Вешается на роутер
// целиком, до аутентификации. 429 при превышении.
func RateLimitIP(maxPerIP int) func(http.Handler) http.Handler {
	byIP := newRateLimiter(maxPerIP, rateLimitWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !byIP.allow(clientIP(r)) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUser ограничивает запросы по user_id из контекста; ставится ПОСЛЕ
// session middleware. Запросы без внутреннего профиля пропускаются — их уже
// посчитал лимитер по IP.
func RateLimitUser(maxPerUser int) func(http.Handler) http.Handler {
	byUser := newRateLimiter(maxPerUser, rateLimitWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := GetUserID(r.Context()); userID != "" {
				if !byUser.allow(userID) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
