package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// ProgressBar wraps progressbar/v3 with pkglife styling
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a counting progress bar rendered to w (stderr when nil)
func NewProgressBar(w io.Writer, max int, description string) *ProgressBar {
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(15),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Add increments the progress bar by n
func (p *ProgressBar) Add(n int) error {
	return p.bar.Add(n)
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() error {
	return p.bar.Finish()
}

// Describe changes the description of the progress bar
func (p *ProgressBar) Describe(description string) {
	p.bar.Describe(description)
}

// IsFinished returns true if the progress bar is finished
func (p *ProgressBar) IsFinished() bool {
	return p.bar.IsFinished()
}

// InvocationProgress tracks scriptlet invocations of one transaction. The bar is
// created lazily because the invocation count is only known once the run starts.
type InvocationProgress struct {
	w       io.Writer
	enabled bool
	bar     *ProgressBar
}

// NewInvocationProgress creates a tracker; a disabled tracker ignores updates
func NewInvocationProgress(w io.Writer, enabled bool) *InvocationProgress {
	return &InvocationProgress{w: w, enabled: enabled}
}

// Step records that invocation index (zero based) of total finished
func (p *InvocationProgress) Step(index, total int, label string) {
	if !p.enabled || total <= 0 {
		return
	}
	if p.bar == nil {
		p.bar = NewProgressBar(p.w, total, "scriptlets")
	}
	p.bar.Describe(label)
	_ = p.bar.Add(1)
	if index+1 >= total && !p.bar.IsFinished() {
		_ = p.bar.Finish()
	}
}

// Done reports whether the tracker has rendered a complete bar
func (p *InvocationProgress) Done() bool {
	return p.bar != nil && p.bar.IsFinished()
}
