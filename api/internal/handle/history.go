package handle

import (
	"net/http"
	"strconv"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

func (h *Handle) RecentCaptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.logAndReturnError(w, r, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"}, nil, "")
		return
	}
	if h.history == nil {
		h.logAndReturnError(w, r, http.StatusServiceUnavailable,
			errorResponse{Error: "Caption history not configured on server"}, nil, "")
		return
	}

	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			h.logAndReturnError(w, r, http.StatusBadRequest,
				errorResponse{Error: "limit must be a positive integer"}, nil, "")
			return
		}
		limit = min(v, maxRecentLimit)
	}

	recs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logAndReturnError(w, r, http.StatusInternalServerError,
			errorResponse{Error: "Server error", Message: err.Error()}, nil, "recent captions: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
