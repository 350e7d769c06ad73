package middleware

import (
	"net/http"
	"time"

	"github.com/chatter/internal/logger"
)

// RequestLog пишет по строке на запрос: метод, путь, статус, длительность.
// Лог асинхронный, обработчик не ждёт записи.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logger.Infof("http %s %s status=%d duration_ms=%d",
			r.Method, r.URL.Path, ww.status, time.Since(start).Milliseconds())
	})
}
