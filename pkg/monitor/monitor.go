// Package monitor is the engine behind the HTTP surface: it owns the
// record store and the playback cursors and composes the loader, window
// extractor and trend aggregator into the three operations the transport
// exposes. All operations are synchronous and bounded; the only shared
// state an operation mutates is the single cursor step taken by LiveWindow.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"physio-replay/pkg/database"
	"physio-replay/pkg/loader"
	"physio-replay/pkg/logger"
	"physio-replay/pkg/playback"
	"physio-replay/pkg/record"
	"physio-replay/pkg/trend"
	"physio-replay/pkg/window"
)

// ErrNoRecordLoaded is returned when a live or trend request arrives
// before any successful upload for that kind. A caller precondition
// failure, not a system fault.
var ErrNoRecordLoaded = errors.New("no record loaded for this kind")

// DefaultTrendPoints is the trend resolution served when the caller does
// not ask for a specific bin count.
const DefaultTrendPoints = 240

// IngestSummary reports what an upload produced, for logging and the
// catalog row.
type IngestSummary struct {
	UploadID string  `json:"uploadID"`
	Kind     string  `json:"kind"`
	Channels int     `json:"channels"`
	Duration float64 `json:"durationSeconds"`
}

// Engine wires the store, the cursor deck and the optional upload catalog.
type Engine struct {
	store *record.Store
	deck  *playback.Deck
	db    *database.Database // nil when the catalog is disabled
}

// New builds an engine with fresh per-kind stores and cursors. db may be
// nil; the catalog is advisory and serving never depends on it.
func New(db *database.Database) *Engine {
	return &Engine{
		store: record.NewStore(),
		deck:  playback.NewDeck(),
		db:    db,
	}
}

// Seed installs a record without an upload, used for demo data at startup.
// The cursor is reset just like a real ingest so playback starts at zero.
func (e *Engine) Seed(rec *record.ChannelRecord) {
	e.store.Replace(rec)
	e.deck.Reset(rec.Kind, rec.Duration)
}

// Ingest parses the upload and atomically replaces the kind's record.
// Parse details are buffered per upload and only replayed on failure.
// Failed uploads leave the previous record (and its cursor) untouched.
func (e *Engine) Ingest(ctx context.Context, kind record.Kind, filename string, r io.Reader) (IngestSummary, error) {
	uploadID := uuid.NewString()[:8]
	logger.Begin(uploadID)
	logger.Append(uploadID, fmt.Sprintf("[%s] ingest %s as %s", uploadID, filename, kind))

	rec, err := loader.Load(kind, filename, r)
	if err != nil {
		logger.FlushError(uploadID, err)
		e.catalog(ctx, database.Upload{
			ID: uploadID, Kind: string(kind), Filename: filename,
			Status: "rejected", Message: err.Error(),
		})
		return IngestSummary{}, err
	}

	e.store.Replace(rec)
	e.deck.Reset(kind, rec.Duration)

	summary := IngestSummary{
		UploadID: uploadID,
		Kind:     string(kind),
		Channels: len(rec.Channels),
		Duration: rec.Duration,
	}
	logger.Success(uploadID, filename)
	e.catalog(ctx, database.Upload{
		ID: uploadID, Kind: string(kind), Filename: filename,
		Channels: summary.Channels, Duration: summary.Duration, Status: "loaded",
	})
	return summary, nil
}

// LiveWindow advances the kind's cursor by one step and extracts the
// resulting window. One poll equals exactly one advance.
func (e *Engine) LiveWindow(kind record.Kind) (window.Result, error) {
	rec := e.store.Get(kind)
	if rec == nil {
		return window.Result{}, ErrNoRecordLoaded
	}

	pos := e.deck.Advance(kind)
	return window.Extract(rec, pos.Offset, pos.WindowLen), nil
}

// Trend aggregates the requested channels of the full record down to at
// most targetPoints values each, independent of the live cursor. An empty
// channelIDs slice means every channel. Unknown channel IDs are skipped,
// matching the rule that one missing channel never fails the request.
func (e *Engine) Trend(kind record.Kind, channelIDs []string, targetPoints int) (map[string]trend.Series, error) {
	rec := e.store.Get(kind)
	if rec == nil {
		return nil, ErrNoRecordLoaded
	}
	if targetPoints <= 0 {
		targetPoints = DefaultTrendPoints
	}
	if len(channelIDs) == 0 {
		channelIDs = rec.ChannelIDs()
	}

	method := methodFor(kind)
	out := make(map[string]trend.Series, len(channelIDs))
	for _, id := range channelIDs {
		series, ok := rec.Channels[id]
		if !ok {
			continue
		}
		out[id] = trend.Aggregate(series, targetPoints, method)
	}
	return out, nil
}

// History returns recent upload catalog rows, empty when the catalog is
// disabled.
func (e *Engine) History(ctx context.Context, limit int) ([]database.Upload, error) {
	if e.db == nil {
		return nil, nil
	}
	return e.db.RecentUploads(ctx, limit)
}

// methodFor picks the per-bin statistic appropriate to the signal class:
// power summaries for dense waveforms, plain means for low-rate numerics.
func methodFor(kind record.Kind) trend.Method {
	if kind == record.KindVitalsNumerics {
		return trend.MeanResample
	}
	return trend.WindowedRMS
}

// catalog writes one advisory history row, logging instead of failing:
// uploads must succeed even when the catalog database is down.
func (e *Engine) catalog(ctx context.Context, up database.Upload) {
	if e.db == nil {
		return
	}
	if err := e.db.RecordUpload(ctx, up); err != nil {
		log.Printf("upload catalog write failed: %v", err)
	}
}
