// Package extract builds the context table of a document: one record per
// embedded image whose placement on its page is known.
package extract

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	apperrors "github.com/xhad/pdfalt/internal/errors"
	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
	"github.com/xhad/pdfalt/pkg/layout"
)

// Status is the result of handling a single page or image.
type Status string

const (
	StatusRecorded Status = "recorded"
	StatusSkipped  Status = "skipped"
)

// Outcome records what happened to one image, or to a whole page when
// ImageName is empty.
type Outcome struct {
	PageIndex int
	ImageName string
	Status    Status
	Reason    string
}

// Table is the ordered context table of one document.
type Table struct {
	Records  []models.ContextRecord
	Images   []models.ImageRef
	Outcomes []Outcome
}

// Skipped returns the outcomes that did not produce a record.
func (t *Table) Skipped() []Outcome {
	var skipped []Outcome
	for _, o := range t.Outcomes {
		if o.Status == StatusSkipped {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

type BuilderConfig struct {
	Threshold float64
	// Sink receives each bounded image's bytes. Optional.
	Sink types.ImageSink
	// OnPage is called after every page with the number of pages done.
	OnPage func(done, total int)
}

type Builder struct {
	config     BuilderConfig
	classifier layout.Classifier
}

func NewWithConfig(config BuilderConfig) *Builder {
	return &Builder{
		config:     config,
		classifier: layout.NewClassifier(config.Threshold),
	}
}

// Build walks the document's pages in order and its images in discovery
// order. Pages that fail to load and images without a rectangle are
// skipped with a logged reason; the only error returned is cancellation.
func (b *Builder) Build(ctx context.Context, doc types.DocumentSource) (*Table, error) {
	table := &Table{}
	total := doc.PageCount()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return table, err
		}

		page, err := doc.Page(i)
		if err != nil {
			err = apperrors.NewExtractionError(fmt.Sprintf("page %d", i+1), err)
			logger.WithFields(logrus.Fields{"page": i + 1}).WithError(err).Warn("Skipping page")
			table.Outcomes = append(table.Outcomes, Outcome{
				PageIndex: i,
				Status:    StatusSkipped,
				Reason:    err.Error(),
			})
			b.progress(i+1, total)
			continue
		}

		for _, img := range page.Images {
			b.addImage(ctx, table, page, img)
		}
		b.progress(i+1, total)
	}

	return table, nil
}

func (b *Builder) addImage(ctx context.Context, table *Table, page models.Page, img models.ImageRef) {
	name := img.Name()
	log := logger.WithFields(logrus.Fields{"page": page.Index + 1, "image": name})

	if img.Rect == nil {
		log.Warn("Skipping image without a bounding box")
		table.Outcomes = append(table.Outcomes, Outcome{
			PageIndex: page.Index,
			ImageName: name,
			Status:    StatusSkipped,
			Reason:    "bounding box not found on page",
		})
		return
	}

	if b.config.Sink != nil && len(img.Bytes) > 0 {
		if err := b.config.Sink.Put(ctx, name, img.Bytes); err != nil {
			log.WithError(err).Warn("Failed to store image bytes")
		}
	}

	c := b.classifier.ClassifyPage(*img.Rect, page.Runs)
	table.Records = append(table.Records, models.ContextRecord{
		ImageName:  name,
		Title:      c.Title,
		TextBefore: c.TextBefore,
		TextAfter:  c.TextAfter,
	})
	table.Images = append(table.Images, img)
	table.Outcomes = append(table.Outcomes, Outcome{
		PageIndex: page.Index,
		ImageName: name,
		Status:    StatusRecorded,
	})
	log.WithField("title", c.Title).Debug("Recorded image context")
}

func (b *Builder) progress(done, total int) {
	if b.config.OnPage != nil {
		b.config.OnPage(done, total)
	}
}
