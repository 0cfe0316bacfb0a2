package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"buildcache/logger"
	"buildcache/storage"
)

// handleHealth отвечает OK без аутентификации
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

// handlePut сохраняет артефакт. Существующая запись не перезаписывается:
// содержимое адресуется хэшем, повторная запись того же хэша - ошибка
// клиента
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if !isValidHash(hash) {
		logger.Debug("Rejected PUT with invalid hash")
		writeError(w, http.StatusBadRequest)
		return
	}

	tenant, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	key := tenant.ObjectKey(hash)

	exists, err := tenant.Store.Exists(ctx, key)
	if err != nil {
		logger.Error("Failed to check record %q for %s: %v", key, tenant.Name, err)
		writeError(w, http.StatusInternalServerError)
		return
	}
	if exists {
		logger.Info("Rejected overwrite of record %q for %s", key, tenant.Name)
		writeError(w, http.StatusConflict)
		return
	}

	// Тело запроса уходит в хранилище потоком. ContentLength равен -1,
	// когда клиент передает тело чанками
	if err := tenant.Store.Put(ctx, key, r.Body, r.ContentLength); err != nil {
		logger.Error("Failed to store record %q for %s: %v", key, tenant.Name, err)
		writeError(w, http.StatusInternalServerError)
		return
	}

	logger.Debug("Stored record %q for %s", key, tenant.Name)
	w.WriteHeader(http.StatusOK)
}

// handleGet отдает артефакт потоком
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if !isValidHash(hash) {
		logger.Debug("Rejected GET with invalid hash")
		writeError(w, http.StatusBadRequest)
		return
	}

	tenant, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized)
		return
	}

	key := tenant.ObjectKey(hash)
	reader, info, err := tenant.Store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logger.Debug("Record %q for %s not found", key, tenant.Name)
			writeError(w, http.StatusNotFound)
			return
		}
		logger.Error("Failed to fetch record %q for %s: %v", key, tenant.Name, err)
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		// Заголовки уже отправлены, остается зафиксировать обрыв
		logger.Warn("Streaming of record %q to %s interrupted: %v", key, tenant.Name, err)
	}
}

// handleHead отдает метаданные артефакта без содержимого
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if !isValidHash(hash) {
		writeError(w, http.StatusBadRequest)
		return
	}

	tenant, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized)
		return
	}

	key := tenant.ObjectKey(hash)
	info, err := tenant.Store.Head(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound)
			return
		}
		logger.Error("Failed to stat record %q for %s: %v", key, tenant.Name, err)
		writeError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
}
