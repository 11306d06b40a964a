package layout

import (
	"math"
	"strings"

	"github.com/xhad/pdfalt/internal/models"
)

// DefaultTitleThreshold is the largest vertical gap, in page units, between
// a run above an image and the image's top edge for the run to count as
// the image's title.
const DefaultTitleThreshold = 50.0

// Context is the text associated with one image.
type Context struct {
	Title      string
	TextBefore string
	TextAfter  string
}

// Classifier derives a Context from the runs around an image.
type Classifier struct {
	Threshold float64
}

// NewClassifier returns a Classifier using threshold, or
// DefaultTitleThreshold when threshold is not positive.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	return Classifier{Threshold: threshold}
}

// Classify builds the context from runs already partitioned by Partition.
// Every above run closer than the threshold replaces the title, so the
// last close run in input order wins; the rest accumulate as text before.
func (c Classifier) Classify(image models.Rectangle, above, below []models.TextRun) Context {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}

	var title string
	var before strings.Builder
	for _, run := range above {
		if math.Abs(run.Rect.Y1-image.Y0) < threshold {
			title = run.Text
			continue
		}
		before.WriteString(run.Text)
		before.WriteString(" ")
	}

	after := make([]string, 0, len(below))
	for _, run := range below {
		after = append(after, run.Text)
	}

	return Context{
		Title:      strings.TrimSpace(title),
		TextBefore: strings.TrimSpace(before.String()),
		TextAfter:  strings.TrimSpace(strings.Join(after, " ")),
	}
}

// ClassifyPage partitions runs around image and classifies the result.
func (c Classifier) ClassifyPage(image models.Rectangle, runs []models.TextRun) Context {
	above, below := Partition(image, runs)
	return c.Classify(image, above, below)
}
