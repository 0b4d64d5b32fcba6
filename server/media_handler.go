package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"OnAirFM/logger"
	"OnAirFM/storage"

	"github.com/gorilla/mux"
)

// MediaHandler 从对象存储读取音频和封面
type MediaHandler struct {
	store MediaStore
}

// NewMediaHandler 创建 MediaHandler 实例
func NewMediaHandler(store MediaStore) *MediaHandler {
	return &MediaHandler{store: store}
}

// RegisterRoutes 注册 /media/ 路由
func (h *MediaHandler) RegisterRoutes(r *mux.Router) {
	r.PathPrefix(storage.MediaRoute).Handler(h).Methods(http.MethodGet, http.MethodHead)
}

// ServeHTTP 支持 Range 请求，便于播放器拖动进度
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := storage.KeyFromURL(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage is not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	obj, err := h.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("Error serving file from MinIO", logger.String("key", key), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Media storage error", nil)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" || strings.HasPrefix(contentType, "binary/") {
		contentType = storage.ContentTypeFor(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	http.ServeContent(w, r, key, obj.ModTime, obj.Body)
}
