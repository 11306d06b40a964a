package main

import (
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/pdfalt/internal/pipeline"
)

var stageDescriptions = map[string]string{
	pipeline.StageExtract:  "📄 Extracting image context...",
	pipeline.StageDescribe: "🤖 Describing images...",
	pipeline.StageArchive:  "💾 Archiving descriptions...",
	pipeline.StageMerge:    "📝 Writing metadata...",
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// stageBars shows one progress bar per pipeline stage.
type stageBars struct {
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

// progressFunc returns nil when progress output is disabled.
func progressFunc(enabled bool) pipeline.ProgressFunc {
	if !enabled {
		return nil
	}
	s := &stageBars{bars: make(map[string]*progressbar.ProgressBar)}
	return s.update
}

func (s *stageBars) update(stage string, done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bar, ok := s.bars[stage]
	if !ok {
		description, ok := stageDescriptions[stage]
		if !ok {
			description = stage
		}
		bar = getProgressBar(total, description)
		s.bars[stage] = bar
	}
	bar.Set(done)
	if done >= total {
		bar.Finish()
	}
}
