package mirror

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressReport renders the per-timestamp iteration as a progress bar. It
// is purely observational: a disabled report is a no-op and the enabled one
// only counts steps.
type progressReport struct {
	writer  progress.Writer
	tracker *progress.Tracker
}

func newProgressReport(enabled bool, url string, total int) *progressReport {
	if !enabled {
		return &progressReport{}
	}

	writer := progress.NewWriter()
	writer.SetUpdateFrequency(time.Millisecond * 100)
	writer.Style().Visibility.ETA = true

	tracker := &progress.Tracker{
		Message: fmt.Sprintf("mirroring %s", url),
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	writer.AppendTracker(tracker)
	go writer.Render()

	return &progressReport{writer: writer, tracker: tracker}
}

func (r *progressReport) step() {
	if r.tracker != nil {
		r.tracker.Increment(1)
	}
}

func (r *progressReport) stop() {
	if r.writer == nil {
		return
	}
	r.tracker.MarkAsDone()
	r.writer.Stop()
}
