// internal/automation/window.go
package automation

import (
	"time"

	"automation-engine/internal/models"
)

// Window is the half-open interval (Start, End]. Consecutive ticks one width
// apart tile the timeline, so every instant lands in exactly one tick's window.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}

// Shift moves both bounds by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

// MatchWindow is the window of matching instants considered by a tick at now.
func MatchWindow(now time.Time, width time.Duration) Window {
	return Window{Start: now.Add(-width), End: now}
}

// ReferenceWindow translates the match window into reference timestamps:
// ref + offset in (now-width, now]  <=>  ref in (now-width-offset, now-offset].
func ReferenceWindow(now time.Time, width, offset time.Duration) Window {
	return MatchWindow(now, width).Shift(-offset)
}

// MatchingInstant is the moment the workflow fires for the subject. offset is
// signed, so a before-workflow with offset -24h fires a day ahead of ReferenceAt.
func MatchingInstant(subject models.Subject, offset time.Duration) time.Time {
	return subject.ReferenceAt.Add(offset)
}
