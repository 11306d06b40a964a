package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/pkg/layout"
)

func run(x0, y0, x1, y1 float64, text string) models.TextRun {
	return models.TextRun{Rect: models.NewRectangle(x0, y0, x1, y1), Text: text}
}

var image = models.NewRectangle(0, 100, 50, 150)

func TestPartition(t *testing.T) {
	runs := []models.TextRun{
		run(0, 0, 100, 20, "top"),
		run(0, 90, 100, 110, "overlaps top edge"),
		run(0, 80, 100, 100, "touches top edge"),
		run(0, 120, 100, 130, "inside"),
		run(0, 150, 100, 170, "touches bottom edge"),
		run(0, 200, 100, 220, "bottom"),
		run(0, 40, 100, 60, "second above"),
	}

	above, below := layout.Partition(image, runs)

	assert.Equal(t, []models.TextRun{runs[0], runs[6]}, above)
	assert.Equal(t, []models.TextRun{runs[5]}, below)
}

func TestPartitionEmpty(t *testing.T) {
	above, below := layout.Partition(image, nil)
	assert.Empty(t, above)
	assert.Empty(t, below)
}

func TestClassifyScenarios(t *testing.T) {
	c := layout.NewClassifier(0)

	tests := []struct {
		name string
		runs []models.TextRun
		want layout.Context
	}{
		{
			name: "close run above is the title",
			runs: []models.TextRun{
				run(0, 40, 100, 60, "Figure 1"),
				run(0, 200, 100, 220, "caption follows"),
			},
			want: layout.Context{Title: "Figure 1", TextAfter: "caption follows"},
		},
		{
			name: "distant run above is text before",
			runs: []models.TextRun{
				run(0, 0, 100, 20, "Intro paragraph"),
			},
			want: layout.Context{TextBefore: "Intro paragraph"},
		},
		{
			name: "last close run wins the title",
			runs: []models.TextRun{
				run(0, 0, 100, 20, "Body text."),
				run(0, 55, 100, 70, "Chapter heading"),
				run(0, 75, 100, 90, "Figure 2"),
				run(0, 5, 100, 25, "More body."),
			},
			want: layout.Context{Title: "Figure 2", TextBefore: "Body text. More body."},
		},
		{
			name: "gap equal to threshold is not a title",
			runs: []models.TextRun{
				run(0, 30, 100, 50, "Exactly fifty"),
			},
			want: layout.Context{TextBefore: "Exactly fifty"},
		},
		{
			name: "after text joined with single spaces and trimmed",
			runs: []models.TextRun{
				run(0, 160, 100, 170, "  first "),
				run(0, 180, 100, 190, "second  "),
			},
			want: layout.Context{TextAfter: "first  second"},
		},
		{
			name: "no runs",
			want: layout.Context{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyPage(image, tt.runs)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Text that follows the image on the page becomes the whole of text after.
func TestImageAtTopOfPage(t *testing.T) {
	runs := []models.TextRun{
		run(0, 200, 100, 220, "one"),
		run(0, 230, 100, 240, "two"),
	}
	top := models.NewRectangle(0, 10, 50, 100)

	got := layout.NewClassifier(0).ClassifyPage(top, runs)
	assert.Equal(t, "", got.Title)
	assert.Equal(t, "", got.TextBefore)
	assert.Equal(t, "one two", got.TextAfter)
}

func TestImageAtBottomOfPage(t *testing.T) {
	runs := []models.TextRun{
		run(0, 0, 100, 20, "one"),
		run(0, 30, 100, 40, "two"),
	}
	bottom := models.NewRectangle(0, 500, 50, 600)

	got := layout.NewClassifier(0).ClassifyPage(bottom, runs)
	assert.Equal(t, "", got.TextAfter)
	assert.Equal(t, "one two", got.TextBefore)
}

func TestClassifyIsPure(t *testing.T) {
	runs := []models.TextRun{
		run(0, 40, 100, 60, "Figure 1"),
		run(0, 0, 100, 20, "Intro"),
		run(0, 200, 100, 220, "after"),
	}
	c := layout.NewClassifier(layout.DefaultTitleThreshold)

	first := c.ClassifyPage(image, runs)
	second := c.ClassifyPage(image, runs)
	assert.Equal(t, first, second)
}

func TestCustomThreshold(t *testing.T) {
	runs := []models.TextRun{run(0, 0, 100, 20, "Intro paragraph")}

	got := layout.NewClassifier(100).ClassifyPage(image, runs)
	assert.Equal(t, "Intro paragraph", got.Title)
	assert.Equal(t, "", got.TextBefore)
}
