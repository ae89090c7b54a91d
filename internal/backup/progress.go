package backup

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/arkhive/arkhive/internal/pipeline"
)

func NewProgressContainer() *mpb.Progress {
	// In the future, we can add a check for os.Stdout TTY status
	return mpb.New(mpb.WithWidth(64))
}

// AddTransferBar registers a percent-scaled bar and returns the callback
// that feeds it. pv reports whole percents, so the bar total is fixed at
// 100 rather than a byte count.
func AddTransferBar(p *mpb.Progress, name string) (*mpb.Bar, func(pipeline.Progress)) {
	if p == nil {
		return nil, nil
	}
	bar := p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Percentage(),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Name(" transferring"), " [DONE]"),
		),
	)
	cb := func(pr pipeline.Progress) {
		bar.SetCurrent(int64(pr.Percent))
	}
	return bar, cb
}

// CompleteBar drives a bar to its end state so the container can drain.
func CompleteBar(bar *mpb.Bar) {
	if bar != nil {
		bar.SetCurrent(100)
	}
}

// AbortBar cancels a bar without filling it, for error paths.
func AbortBar(bar *mpb.Bar) {
	if bar != nil {
		bar.Abort(true)
	}
}
