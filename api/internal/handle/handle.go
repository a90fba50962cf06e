package handle

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/logging"
	"caption-proxy/api/internal/store"
)

// HistoryStore persists successful generations. It is optional.
type HistoryStore interface {
	Insert(ctx context.Context, rec store.CaptionRecord) (int64, error)
	Recent(ctx context.Context, limit int) ([]store.CaptionRecord, error)
}

type Handle struct {
	engs    *caption.Engines
	history HistoryStore
	log     *logrus.Logger
}

func New(engs *caption.Engines, history HistoryStore) *Handle {
	return &Handle{
		engs:    engs,
		history: history,
		log:     logging.GetLogger(),
	}
}

// WithLogger replaces the process-wide logger.
func (h *Handle) WithLogger(l *logrus.Logger) *Handle {
	if l != nil {
		h.log = l
	}
	return h
}

// Register mounts every route on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/generate-caption", h.GenerateCaption)
	mux.HandleFunc("/api/generate-caption", h.GenerateCaption)
	mux.HandleFunc("/captions/recent", h.RecentCaptions)
}

type errorResponse struct {
	Error   string          `json:"error"`
	Details *string         `json:"details,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handle) logAndReturnError(w http.ResponseWriter, r *http.Request, code int, resp errorResponse, fields logrus.Fields, consoleStr string) {
	entry := h.log.WithFields(logrus.Fields{
		"status": code,
		"remote": r.RemoteAddr,
		"path":   r.URL.Path,
	}).WithFields(fields)
	if consoleStr == "" {
		consoleStr = resp.Error
	}
	if code >= http.StatusInternalServerError {
		entry.Error(consoleStr)
	} else {
		entry.Warn(consoleStr)
	}
	writeJSON(w, code, resp)
}
