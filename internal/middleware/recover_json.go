package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"

	"github.com/chatter/internal/logger"
)

// responseWriter запоминает статус и факт отправки заголовков. Реализует
// http.Hijacker, иначе сломается WebSocket upgrade за этим middleware.
type responseWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// RecoverJSON перехватывает панику обработчика: пишет её в лог и, если ответ
// ещё не начат, отдаёт клиенту JSON 500 вместо пустого обрыва соединения.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				logger.Errorf("panic in %s %s: %v", r.Method, r.URL.Path, p)
				if !ww.wrote {
					ww.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
					ww.ResponseWriter.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(ww.ResponseWriter).Encode(map[string]string{"error": "internal server error"})
				}
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
