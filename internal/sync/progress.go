package sync

import (
	"github.com/cheggaaa/pb/v3"
)

const progressTemplate = `Syncing {{counters . }} {{bar . }} {{percent . }} {{etime . }}`

// progress is a pass-wide progress bar; a disabled progress is a no-op.
type progress struct {
	bar *pb.ProgressBar
}

func newProgress(enabled bool, total int) *progress {
	if !enabled || total == 0 {
		return &progress{}
	}
	bar := pb.New(total)
	bar.SetTemplateString(progressTemplate)
	bar.Start()
	return &progress{bar: bar}
}

func (p *progress) increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progress) finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
