package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"OnAirFM/core/audio"
	"OnAirFM/core/radio"
	"OnAirFM/logger"
	"OnAirFM/model"
	"OnAirFM/repository"
	"OnAirFM/storage"

	"github.com/gorilla/mux"
)

// RadioService 调度器对传输层暴露的操作
type RadioService interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Skip(ctx context.Context) error
	AddTrack(ctx context.Context, input model.TrackInput) (*model.Track, error)
	RemoveTrack(ctx context.Context, id uint64) error
	Queue(ctx context.Context) ([]uint64, error)
	Status() radio.Status
	Subscribe() (*radio.Subscription, radio.Status)
}

// MediaStore 上传文件的存储
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (*storage.Object, error)
}

// RadioHandler 电台控制与曲库接口
type RadioHandler struct {
	radio     RadioService
	tracks    repository.TrackRepository
	media     MediaStore
	prober    audio.Prober
	maxUpload int64
}

// NewRadioHandler 创建电台处理器。media 和 prober 可以为 nil，此时上传接口不可用
func NewRadioHandler(svc RadioService, tracks repository.TrackRepository, media MediaStore, prober audio.Prober, maxUpload int64) *RadioHandler {
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &RadioHandler{radio: svc, tracks: tracks, media: media, prober: prober, maxUpload: maxUpload}
}

// RegisterRoutes 注册电台路由
func (h *RadioHandler) RegisterRoutes(r *mux.Router, authH *AuthHandler) {
	api := r.PathPrefix("/api/radio").Subrouter()

	api.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/start", authH.Protect(h.StartHandler, model.RoleAdmin, model.RoleDJ)).Methods(http.MethodPost)
	api.HandleFunc("/pause", authH.Protect(h.PauseHandler, model.RoleAdmin, model.RoleDJ)).Methods(http.MethodPost)
	api.HandleFunc("/skip", authH.Protect(h.SkipHandler, model.RoleAdmin, model.RoleDJ)).Methods(http.MethodPost)
	api.HandleFunc("/queue", authH.Protect(h.QueueHandler, model.RoleAdmin, model.RoleDJ)).Methods(http.MethodGet)

	api.HandleFunc("/tracks", h.ListTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks", authH.Protect(h.CreateTrackHandler, model.RoleAdmin)).Methods(http.MethodPost)
	api.HandleFunc("/tracks/upload", authH.Protect(h.UploadTrackHandler, model.RoleAdmin)).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id:[0-9]+}", h.GetTrackHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id:[0-9]+}", authH.Protect(h.DeleteTrackHandler, model.RoleAdmin)).Methods(http.MethodDelete)
}

// ========== 播出控制 ==========

// StatusHandler 当前播出快照
func (h *RadioHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.radio.Status())
}

// ControlResponse 控制操作的响应
type ControlResponse struct {
	Message string       `json:"message"`
	Status  radio.Status `json:"status"`
}

// StartHandler 开始或恢复播出
func (h *RadioHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.radio.Start, "Radio streaming started")
}

// PauseHandler 暂停播出
func (h *RadioHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "pause", h.radio.Pause, "Radio streaming paused")
}

// SkipHandler 立即切到下一首
func (h *RadioHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "skip", h.radio.Skip, "Skipped to next track")
}

func (h *RadioHandler) control(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) error, message string) {
	username, _ := GetUsernameFromContext(r.Context())
	if err := fn(r.Context()); err != nil {
		logger.Error("radio control failed", logger.String("op", op), logger.String("username", username), logger.ErrorField(err))
		writeError(w, statusForError(err), fmt.Sprintf("Error during radio %s", op), err)
		return
	}
	status := h.radio.Status()
	if op == "start" && status.Idle() {
		message = "No tracks available"
	}
	logger.Info("radio control", logger.String("op", op), logger.String("username", username), logger.Bool("playing", status.IsPlaying))
	writeJSON(w, http.StatusOK, ControlResponse{Message: message, Status: status})
}

// QueueHandler 轮播顺序
func (h *RadioHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	queue, err := h.radio.Queue(r.Context())
	if err != nil {
		writeError(w, statusForError(err), "Error reading rotation", err)
		return
	}
	if queue == nil {
		queue = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue": queue})
}

// ========== 曲库 ==========

// ListTracksHandler 最近播放的可用曲目
func (h *RadioHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
		limit = n
	}
	tracks, err := h.tracks.ListRecent(r.Context(), limit)
	if err != nil {
		logger.Error("Error fetching tracks", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Error fetching tracks", err)
		return
	}
	if tracks == nil {
		tracks = []model.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler 按 ID 查询曲目
func (h *RadioHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackIDFromPath(w, r)
	if !ok {
		return
	}
	track, err := h.tracks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Error fetching track", err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// CreateTrackHandler 以 JSON 元数据添加曲目
func (h *RadioHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var input model.TrackInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.addTrack(w, r, input)
}

func (h *RadioHandler) addTrack(w http.ResponseWriter, r *http.Request, input model.TrackInput) {
	track, err := h.radio.AddTrack(r.Context(), input)
	if err != nil {
		logger.Warn("Error adding track", logger.ErrorField(err))
		writeError(w, statusForError(err), "Error adding track", err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// UploadTrackHandler 上传音频（字段 track）和可选封面（字段 artwork）
func (h *RadioHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage is not configured", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("track")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No track file uploaded", err)
		return
	}
	defer file.Close()

	input := model.TrackInput{
		Title:  r.FormValue("title"),
		Artist: r.FormValue("artist"),
		Genre:  r.FormValue("genre"),
	}
	fillFromTags(&input, file, header.Filename)

	duration, err := h.probeDuration(r.Context(), file, header.Filename)
	if err != nil {
		logger.Warn("could not read audio duration", logger.String("file", header.Filename), logger.ErrorField(err))
	}
	input.Duration = duration
	if v := r.FormValue("duration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			input.Duration = n
		}
	}

	// 先校验元数据再上传，避免产生孤立对象
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Error adding track", err)
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading upload", err)
		return
	}
	input.MediaURL, err = h.media.Put(r.Context(), storage.ObjectKey(storage.PrefixTracks, header.Filename), file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		logger.Error("track upload failed", logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Error storing track", err)
		return
	}

	if art, artHeader, err := r.FormFile("artwork"); err == nil {
		defer art.Close()
		input.ArtworkURL, err = h.media.Put(r.Context(), storage.ObjectKey(storage.PrefixArtwork, artHeader.Filename), art, artHeader.Size, artHeader.Header.Get("Content-Type"))
		if err != nil {
			logger.Error("artwork upload failed", logger.ErrorField(err))
			writeError(w, http.StatusBadGateway, "Error storing artwork", err)
			return
		}
	}

	h.addTrack(w, r, input)
}

// fillFromTags 表单没填的标题/艺术家从内嵌标签补齐，最后退回到文件名
func fillFromTags(input *model.TrackInput, file multipart.File, filename string) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Artist) == "" || strings.TrimSpace(input.Genre) == "" {
		if tags, err := audio.ReadTags(file); err == nil {
			if strings.TrimSpace(input.Title) == "" {
				input.Title = tags.Title
			}
			if strings.TrimSpace(input.Artist) == "" {
				input.Artist = tags.Artist
			}
			if strings.TrimSpace(input.Genre) == "" {
				input.Genre = tags.Genre
			}
		}
	}
	if strings.TrimSpace(input.Title) == "" {
		input.Title = audio.TitleFromFilename(filename)
	}
}

// probeDuration 把上传内容落到临时文件后交给 ffprobe
func (h *RadioHandler) probeDuration(ctx context.Context, file multipart.File, filename string) (int, error) {
	if h.prober == nil {
		return 0, errors.New("no audio prober configured")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp("", "onair-upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		return 0, err
	}
	seconds, err := h.prober.GetAudioDuration(ctx, tmp.Name())
	if err != nil {
		return 0, err
	}
	return audio.DurationSeconds(seconds), nil
}

// DeleteTrackHandler 下架曲目
func (h *RadioHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackIDFromPath(w, r)
	if !ok {
		return
	}
	if err := h.radio.RemoveTrack(r.Context(), id); err != nil {
		logger.Warn("Error removing track", logger.Uint64("track_id", id), logger.ErrorField(err))
		writeError(w, statusForError(err), "Error removing track", err)
		return
	}
	writeMessage(w, http.StatusOK, "Track removed successfully")
}

func trackIDFromPath(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "Invalid track ID", nil)
		return 0, false
	}
	return id, true
}

// statusForError 把领域错误映射为 HTTP 状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrTrackNotFound), errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidTrack),
		errors.Is(err, model.ErrTitleRequired),
		errors.Is(err, model.ErrArtistRequired),
		errors.Is(err, model.ErrNegativeDuration):
		return http.StatusBadRequest
	case errors.Is(err, radio.ErrSchedulerClosed), errors.Is(err, radio.ErrSchedulerNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
