// Package progress reports how far a run's generation and verification
// phases have advanced.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// DefaultWidth is the bar width in characters
const DefaultWidth = 80

// Phase names a run phase
type Phase string

const (
	PhaseGenerate Phase = "generate"
	PhaseVerify   Phase = "verify"
)

// Reporter receives version-level progress
type Reporter interface {
	// Begin starts a phase covering total versions
	Begin(phase Phase, total int)
	// Step reports that work on version index has started
	Step(index int)
	// Done ends the current phase
	Done()
}

// Callback receives progress updates
type Callback func(update Update)

// Update is one progress event
type Update struct {
	Type  UpdateType
	Phase Phase
	Index int
	Total int
}

// UpdateType indicates the kind of update
type UpdateType int

const (
	UpdateBegin UpdateType = iota
	UpdateStep
	UpdateDone
)

// CallbackReporter forwards updates to a callback.
// The callback runs outside the reporter's lock.
type CallbackReporter struct {
	callback Callback
	mu       sync.Mutex
	phase    Phase
	total    int
	index    int
}

// NewCallbackReporter creates a CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback}
}

func (r *CallbackReporter) Begin(phase Phase, total int) {
	r.mu.Lock()
	r.phase = phase
	r.total = total
	r.index = 0
	update := Update{Type: UpdateBegin, Phase: phase, Total: total}
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) Step(index int) {
	r.mu.Lock()
	r.index = index
	update := Update{Type: UpdateStep, Phase: r.phase, Index: index, Total: r.total}
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) Done() {
	r.mu.Lock()
	update := Update{Type: UpdateDone, Phase: r.phase, Index: r.index, Total: r.total}
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) emit(update Update) {
	if r.callback != nil {
		r.callback(update)
	}
}

// NewBarReporter renders an in-place bar to w: "\r[####    ] 3"
func NewBarReporter(w io.Writer, width int) *CallbackReporter {
	if width <= 0 {
		width = DefaultWidth
	}
	var total int
	return NewCallbackReporter(func(u Update) {
		switch u.Type {
		case UpdateBegin:
			total = u.Total
		case UpdateStep:
			fmt.Fprintf(w, "\r%s", FormatProgress(u.Index, total, width))
		case UpdateDone:
			fmt.Fprintln(w)
		}
	})
}

// NullReporter discards progress
type NullReporter struct{}

func (NullReporter) Begin(phase Phase, total int) {}
func (NullReporter) Step(index int)               {}
func (NullReporter) Done()                        {}

// FormatProgress returns "[###...   ] current" with current*width/total
// cells filled
func FormatProgress(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(max(current*width/total, 0), width)
	}
	return fmt.Sprintf("[%s%s] %d", strings.Repeat("#", filled), strings.Repeat(" ", width-filled), current)
}

// FormatBytes formats a byte count, e.g. "95 MiB"
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return humanize.IBytes(uint64(bytes))
}
