package server

import (
	"io"
	"net/http"
)

// Фиксированные тексты ответов об ошибках. Клиент видит только их,
// подробности остаются в логах
var statusTexts = map[int]string{
	http.StatusBadRequest:          "Bad request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusNotFound:            "The record was not found",
	http.StatusConflict:            "Cannot override an existing record",
	http.StatusInternalServerError: "Internal server error",
}

// writeError отправляет клиенту фиксированный текст для кода состояния
func writeError(w http.ResponseWriter, status int) {
	text, ok := statusTexts[status]
	if !ok {
		status = http.StatusInternalServerError
		text = statusTexts[status]
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

// statusWriter запоминает код состояния ответа для логов и метрик
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush пробрасывает промежуточную отправку к клиенту, чтобы большие
// артефакты уходили потоком
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
