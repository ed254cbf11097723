// Package progress renders a stage progress bar for interactive runs.
package progress

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar wraps a progressbar so that callers can treat a disabled bar uniformly.
type Bar struct {
	bar *progressbar.ProgressBar
}

func New(total int, description string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Disabled returns a bar that renders nothing.
func Disabled() *Bar {
	return &Bar{}
}

func (b *Bar) Add(n int) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
