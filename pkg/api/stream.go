package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"physio-replay/pkg/monitor"
	"physio-replay/pkg/record"
)

// streamInterval is the wall-clock pace of the pushed playback: one window
// per second, matching the cursor's half-second step for a 2x replay feel.
const streamInterval = time.Second

// handleStream pushes live windows over Server-Sent Events so browsers can
// render a scrolling trace without polling. Each tick advances playback
// exactly once; the feed stops when the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, kind record.Kind) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	ctx := r.Context()
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	// First window immediately so the client does not stare at a blank
	// canvas for a full tick.
	if !h.pushWindow(w, flusher, kind) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.pushWindow(w, flusher, kind) {
				return
			}
		}
	}
}

// pushWindow emits one window event, or a terminal done event when the kind
// has no record. Returns false once the feed should stop.
func (h *Handler) pushWindow(w http.ResponseWriter, flusher http.Flusher, kind record.Kind) bool {
	res, err := h.Engine.LiveWindow(kind)
	if err != nil {
		if errors.Is(err, monitor.ErrNoRecordLoaded) {
			fmt.Fprintf(w, "event: done\ndata: %v\n\n", err)
		} else {
			fmt.Fprint(w, "event: done\ndata: stream error\n\n")
			if h.Logf != nil {
				h.Logf("stream error for %s: %v", kind, err)
			}
		}
		flusher.Flush()
		return false
	}

	b, err := json.Marshal(res)
	if err != nil {
		return false
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
	return true
}
