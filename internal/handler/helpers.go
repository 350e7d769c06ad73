package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chatter/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON сериализует data в ответ; ошибка кодирования только логируется,
// статус к этому моменту уже отправлен.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// queryInt читает целочисленный query-параметр; нечисловое или пустое
// значение даёт fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
