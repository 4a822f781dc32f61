package domain

import (
	"fmt"
	"time"
)

type SyncMode string

const (
	SyncModeRealtime SyncMode = "REALTIME"
	SyncModeOneDay   SyncMode = "ONE_DAY"
	SyncModeRange    SyncMode = "RANGE"
)

const (
	// RealtimeLag keeps the window behind "now" so providers have indexed the fax.
	RealtimeLag   = 5 * time.Minute
	RealtimeWidth = 5 * time.Minute
)

// SyncWindow is the half-open interval (Start, End].
type SyncWindow struct {
	Start time.Time
	End   time.Time
	Mode  SyncMode
}

func (w SyncWindow) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}

func (w SyncWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

func (w SyncWindow) String() string {
	return fmt.Sprintf("%s(%s, %s]", w.Mode, w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// RealtimeWindow returns the lagging five-minute window for now. Bounds are
// minute-aligned so consecutive passes tile without gaps or overlap.
// When lastEnd is within maxCatchUp of the new end, the window is stretched back
// to lastEnd so a delayed pass does not skip records.
func RealtimeWindow(now time.Time, lastEnd *time.Time, maxCatchUp time.Duration) SyncWindow {
	end := now.UTC().Truncate(time.Minute).Add(-RealtimeLag)
	start := end.Add(-RealtimeWidth)
	if lastEnd != nil {
		le := lastEnd.UTC()
		if le.Before(start) && !le.Before(end.Add(-maxCatchUp)) {
			start = le
		}
	}
	return SyncWindow{Start: start, End: end, Mode: SyncModeRealtime}
}

func OneDayWindow(now time.Time) SyncWindow {
	end := now.UTC()
	return SyncWindow{Start: end.Add(-24 * time.Hour), End: end, Mode: SyncModeOneDay}
}

func RangeWindow(start, end time.Time) (SyncWindow, error) {
	w := SyncWindow{Start: start.UTC(), End: end.UTC(), Mode: SyncModeRange}
	if err := w.Validate(); err != nil {
		return SyncWindow{}, err
	}
	return w, nil
}

// SyncRequest selects partners and the window computation for one sync pass.
type SyncRequest struct {
	Mode      SyncMode
	Start     time.Time
	End       time.Time
	PartnerID *int64
}

// SyncSummary is the outcome of a sync pass.
type SyncSummary struct {
	Partners     int
	Combinations int
	Fetched      int
	Created      int
	Existing     int
	Failed       int
	Skipped      int
}
