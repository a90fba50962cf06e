package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/store"
	"caption-proxy/api/internal/util"
)

const maxBodyBytes = 1 << 20

// promptFields are checked in order; the first non-empty string wins.
var promptFields = []string{"description", "prompt"}

type captionResponse struct {
	Captions string `json:"captions"`
}

type captionReq struct {
	Prompt  string
	LLMName string
}

// decodeCaptionReq never fails: an unreadable body simply yields no prompt.
func decodeCaptionReq(r io.Reader) captionReq {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&body); err != nil {
		return captionReq{}
	}
	var req captionReq
	for _, f := range promptFields {
		if s, ok := body[f].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				req.Prompt = s
				break
			}
		}
	}
	if s, ok := body["llm_name"].(string); ok {
		req.LLMName = s
	}
	return req
}

func (h *Handle) GenerateCaption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.logAndReturnError(w, r, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"},
			logrus.Fields{"method": r.Method}, "")
		return
	}
	defer r.Body.Close()

	req := decodeCaptionReq(r.Body)
	if req.Prompt == "" {
		h.logAndReturnError(w, r, http.StatusBadRequest,
			errorResponse{Error: "Missing description or prompt in request body"}, nil, "")
		return
	}

	engine, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		h.logAndReturnError(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()},
			logrus.Fields{"llm_name": req.LLMName}, "")
		return
	}
	fields := logrus.Fields{"engine": engine.Name(), "model": engine.GetModel()}

	if !engine.Configured() {
		err := caption.NotConfigured(providerName(engine))
		h.logAndReturnError(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()}, fields,
			"Missing "+providerName(engine)+" API key on server")
		return
	}

	// The outbound call completes even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	start := time.Now()
	res, err := engine.Generate(ctx, caption.Request{Prompt: req.Prompt})
	fields["elapsed"] = time.Since(start).String()

	var (
		upstreamErr *caption.UpstreamError
		emptyErr    *caption.EmptyContentError
	)
	switch {
	case err == nil:
	case errors.Is(err, caption.ErrNotConfigured):
		h.logAndReturnError(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()}, fields, "")
		return
	case errors.As(err, &upstreamErr):
		fields["upstream_status"] = upstreamErr.StatusCode
		details := upstreamErr.Body
		h.logAndReturnError(w, r, http.StatusBadGateway,
			errorResponse{Error: upstreamErr.Provider + " API error", Details: &details}, fields,
			upstreamErr.Provider+" responded non-OK: "+upstreamErr.Body)
		return
	case errors.As(err, &emptyErr):
		raw := emptyErr.Raw
		if !json.Valid(raw) {
			raw, _ = json.Marshal(string(raw))
		}
		h.logAndReturnError(w, r, http.StatusBadGateway,
			errorResponse{Error: "Invalid response", Raw: raw}, fields,
			"No content returned by "+emptyErr.Provider+": "+util.TruncateBytes(emptyErr.Raw, 1000))
		return
	default:
		h.logAndReturnError(w, r, http.StatusInternalServerError,
			errorResponse{Error: "Server error", Message: err.Error()}, fields, "Handler error: "+err.Error())
		return
	}

	h.record(ctx, engine, req.Prompt, res.Captions)
	h.log.WithFields(fields).Infof("%s -- %s -- %s", r.RemoteAddr, r.Method, r.URL.Path)
	writeJSON(w, http.StatusOK, captionResponse{Captions: res.Captions})
}

func (h *Handle) record(ctx context.Context, engine caption.Engine, prompt, captions string) {
	if h.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := h.history.Insert(ctx, store.CaptionRecord{
		Engine:   engine.Name(),
		Model:    engine.GetModel(),
		Prompt:   prompt,
		Captions: captions,
	})
	if err != nil {
		h.log.WithError(err).Warn("caption history insert failed")
	}
}

func providerName(e caption.Engine) string {
	switch e.Name() {
	case "gpt":
		return "OpenAI"
	case "gemini":
		return "Gemini"
	}
	return e.Name()
}
