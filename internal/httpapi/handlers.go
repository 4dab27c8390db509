package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/synth"
	"github.com/voxcache/voxcache/internal/tts"
)

// handleTransform serves GET /transform?text=...&effects=a,b
func (r *Router) handleTransform(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	text := q.Get("text")
	if err := tts.ValidateText(text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	effects, err := tts.ParseEffects(q.Get("effects"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := RequestID(req.Context())
	res, err := r.resolver.Resolve(req.Context(), synth.Request{Text: text, Effects: effects})
	if err != nil {
		switch {
		case errors.Is(err, tts.ErrEmptyText), errors.Is(err, tts.ErrUnknownEffect):
			writeError(w, http.StatusBadRequest, err.Error())
		case req.Context().Err() != nil:
			r.logger.Debug("Client went away", "id", id)
		default:
			r.logger.Error("Synthesis failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "synthesis failed")
		}
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set(HeaderSource, string(res.Source))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		r.logger.Debug("Write audio", "id", id, "err", err)
	}
}

type recordsResponse struct {
	Count   int                 `json:"count"`
	Records []cache.VoiceRecord `json:"records"`
}

func (r *Router) handleRecords(w http.ResponseWriter, _ *http.Request) {
	recs := r.records.Records()
	if recs == nil {
		recs = []cache.VoiceRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Count: len(recs), Records: recs})
}
