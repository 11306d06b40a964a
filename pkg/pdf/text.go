package pdf

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/pdfalt/internal/models"
)

const (
	// Glyphs whose baselines differ by less than this share a line.
	sameLineFactor = 0.5
	// A horizontal gap wider than this starts a new word.
	wordGapFactor = 0.2
	// Lines whose baselines are closer than this belong to one block.
	blockGapFactor = 1.6
)

type line struct {
	x0, x1   float64
	baseline float64
	size     float64
	text     strings.Builder
}

func (l *line) add(t pdf.Text) {
	size := fontSize(t)
	if l.text.Len() > 0 && t.X-l.x1 > size*wordGapFactor && !strings.HasSuffix(l.text.String(), " ") && !strings.HasPrefix(t.S, " ") {
		l.text.WriteByte(' ')
	}
	l.text.WriteString(t.S)
	l.x0 = math.Min(l.x0, t.X)
	l.x1 = math.Max(l.x1, t.X+t.W)
	l.size = math.Max(l.size, size)
}

func (l *line) continues(t pdf.Text) bool {
	size := math.Max(l.size, fontSize(t))
	if math.Abs(t.Y-l.baseline) > size*sameLineFactor {
		return false
	}
	// A jump back to the left margin is a new line even on the same baseline.
	return t.X >= l.x1-size
}

func newLine(t pdf.Text) *line {
	l := &line{x0: t.X, x1: t.X, baseline: t.Y}
	l.add(t)
	return l
}

func fontSize(t pdf.Text) float64 {
	if t.FontSize <= 0 {
		return 1
	}
	return t.FontSize
}

// groupRuns assembles positioned glyphs into text blocks in content order.
func groupRuns(texts []pdf.Text, mb box) []models.TextRun {
	var lines []*line
	var cur *line
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if cur != nil && cur.continues(t) {
			cur.add(t)
			continue
		}
		cur = newLine(t)
		lines = append(lines, cur)
	}

	var runs []models.TextRun
	var block []*line
	flush := func() {
		if run, ok := blockRun(block, mb); ok {
			runs = append(runs, run)
		}
		block = nil
	}
	for _, l := range lines {
		if len(block) > 0 && !sameBlock(block[len(block)-1], l) {
			flush()
		}
		block = append(block, l)
	}
	flush()
	return runs
}

func sameBlock(prev, next *line) bool {
	gap := prev.baseline - next.baseline
	size := math.Max(prev.size, next.size)
	if gap <= 0 || gap > size*blockGapFactor {
		return false
	}
	return next.x0 <= prev.x1 && prev.x0 <= next.x1
}

func blockRun(block []*line, mb box) (models.TextRun, bool) {
	if len(block) == 0 {
		return models.TextRun{}, false
	}

	parts := make([]string, 0, len(block))
	r := box{x0: math.Inf(1), y0: math.Inf(1), x1: math.Inf(-1), y1: math.Inf(-1)}
	for _, l := range block {
		if s := strings.TrimSpace(l.text.String()); s != "" {
			parts = append(parts, s)
		}
		r.x0 = math.Min(r.x0, l.x0)
		r.x1 = math.Max(r.x1, l.x1)
		r.y0 = math.Min(r.y0, l.baseline)
		r.y1 = math.Max(r.y1, l.baseline+l.size)
	}
	if len(parts) == 0 {
		return models.TextRun{}, false
	}
	return models.TextRun{Rect: mb.toPage(r), Text: strings.Join(parts, " ")}, true
}
