// Package pipeline runs the three phases of a document: context extraction,
// description and metadata merge. Each phase reads and writes the same files
// as its command so phases can be run separately.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/xhad/pdfalt/internal/errors"
	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
	"github.com/xhad/pdfalt/pkg/describe"
	"github.com/xhad/pdfalt/pkg/extract"
	"github.com/xhad/pdfalt/pkg/metadata"
	"github.com/xhad/pdfalt/pkg/pdf"
	"github.com/xhad/pdfalt/pkg/table"
)

const (
	StageExtract  = "extract"
	StageDescribe = "describe"
	StageMerge    = "merge"
	StageArchive  = "archive"
)

// File name suffixes of the phase outputs.
const (
	contextSuffix   = "_image_context.csv"
	describedSuffix = "_with_alt_text.csv"
	documentSuffix  = "_with_accessibility.pdf"
)

// ErrNoGenerator is returned by Describe when no generator is configured.
var ErrNoGenerator = errors.New("no description generator configured")

// ProgressFunc reports done out of total units of work for a stage.
type ProgressFunc func(stage string, done, total int)

// OpenFunc opens the page model of the document at path.
type OpenFunc func(path string) (types.DocumentSource, error)

// Archiver stores the described records of a run.
type Archiver interface {
	Store(ctx context.Context, runID uuid.UUID, document string, records []models.DescribedRecord) error
}

type Config struct {
	// Open reads the page model. Defaults to the native PDF reader.
	Open      OpenFunc
	Threshold float64
	// Sink receives extracted image bytes. Optional.
	Sink      types.ImageSink
	Generator types.Generator
	Describe  describe.Options
	Merger    metadata.Merger
	// Archive receives described records after each run. Optional.
	Archive Archiver
	// OutDir holds all outputs. Defaults to the input's directory.
	OutDir     string
	OnProgress ProgressFunc
}

type Pipeline struct {
	config Config
}

func NewWithConfig(config Config) *Pipeline {
	if config.Open == nil {
		config.Open = OpenPDF
	}
	return &Pipeline{config: config}
}

// OpenPDF opens a document with the native PDF reader.
func OpenPDF(path string) (types.DocumentSource, error) {
	return pdf.Open(path)
}

// ExtractResult is the outcome of the extraction phase.
type ExtractResult struct {
	ContextTable string
	Records      []models.ContextRecord
	Skipped      []extract.Outcome
}

// DescribeResult is the outcome of the description phase.
type DescribeResult struct {
	DescribedTable string
	Records        []models.DescribedRecord
	Failures       []describe.Failure
}

// MergeResult is the outcome of the merge phase.
type MergeResult struct {
	Output    string
	Metadata  metadata.Dict
	RowErrors []table.RowError
}

// Result summarizes a full run.
type Result struct {
	RunID uuid.UUID
	Input string
	ExtractResult
	DescribeResult
	MergeResult
}

// Extract builds the context table of the document at input and writes it
// next to the outputs.
func (p *Pipeline) Extract(ctx context.Context, input string) (*ExtractResult, error) {
	doc, err := p.config.Open(input)
	if err != nil {
		return nil, apperrors.NewFatalError("open document", err)
	}
	defer doc.Close()

	builder := extract.NewWithConfig(extract.BuilderConfig{
		Threshold: p.config.Threshold,
		Sink:      p.config.Sink,
		OnPage: func(done, total int) {
			p.progress(StageExtract, done, total)
		},
	})

	t, err := builder.Build(ctx, doc)
	if err != nil {
		return nil, apperrors.NewFatalError("extract", err)
	}

	path := p.ContextTablePath(input)
	if err := table.WriteContextFile(path, t.Records); err != nil {
		return nil, apperrors.NewFatalError("write context table", err)
	}

	logger.WithFields(logrus.Fields{
		"document": input,
		"images":   len(t.Records),
		"skipped":  len(t.Skipped()),
		"table":    path,
	}).Info("Context table written")

	return &ExtractResult{ContextTable: path, Records: t.Records, Skipped: t.Skipped()}, nil
}

// Describe generates a description for every record and writes the
// described table. input names the document or table the records came from.
func (p *Pipeline) Describe(ctx context.Context, input string, records []models.ContextRecord) (*DescribeResult, error) {
	if p.config.Generator == nil {
		return nil, apperrors.NewFatalError("describe", ErrNoGenerator)
	}

	var done atomic.Int64
	total := len(records)
	opts := p.config.Describe
	onRecord := opts.OnRecord
	opts.OnRecord = func(record models.DescribedRecord, err error) {
		if onRecord != nil {
			onRecord(record, err)
		}
		p.progress(StageDescribe, int(done.Add(1)), total)
	}

	batch := describe.Describe(ctx, records, p.config.Generator, opts)

	path := p.DescribedTablePath(input)
	if err := table.WriteDescribedFile(path, batch.Records); err != nil {
		return nil, apperrors.NewFatalError("write described table", err)
	}

	logger.WithFields(logrus.Fields{
		"records":  len(batch.Records),
		"failures": len(batch.Failures),
		"table":    path,
	}).Info("Described table written")

	return &DescribeResult{DescribedTable: path, Records: batch.Records, Failures: batch.Failures}, nil
}

// DescribeFile describes the records of a context table file.
func (p *Pipeline) DescribeFile(ctx context.Context, contextTable string) (*DescribeResult, error) {
	records, rowErrs, err := table.ReadContextFile(contextTable)
	if err != nil {
		return nil, apperrors.NewFatalError("read context table", err)
	}
	logRowErrors(contextTable, rowErrs)
	return p.Describe(ctx, contextTable, records)
}

// Merge writes a copy of the PDF at input whose metadata holds the
// descriptions and the accessibility assertions.
func (p *Pipeline) Merge(ctx context.Context, input string, records []models.DescribedRecord) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.progress(StageMerge, 0, 1)

	doc, err := pdf.Open(input)
	if err != nil {
		return nil, apperrors.NewFatalError("open document", err)
	}
	original := metadata.FromEntries(doc.Metadata())
	doc.Close()

	merged := p.config.Merger.Merge(original, records)

	out := p.OutputDocumentPath(input)
	if err := pdf.WriteMetadata(input, out, merged.Entries()); err != nil {
		return nil, apperrors.NewFatalError("write document", err)
	}
	p.progress(StageMerge, 1, 1)

	logger.WithFields(logrus.Fields{
		"document": out,
		"records":  len(records),
		"keys":     merged.Len(),
	}).Info("Accessibility metadata written")

	return &MergeResult{Output: out, Metadata: merged}, nil
}

// MergeFile merges the described table at describedTable into the PDF at
// input. Malformed rows are skipped and returned.
func (p *Pipeline) MergeFile(ctx context.Context, input, describedTable string) (*MergeResult, error) {
	records, rowErrs, err := table.ReadDescribedFile(describedTable)
	if err != nil {
		return nil, apperrors.NewFatalError("read described table", err)
	}
	logRowErrors(describedTable, rowErrs)

	result, err := p.Merge(ctx, input, records)
	if err != nil {
		return nil, err
	}
	result.RowErrors = rowErrs
	return result, nil
}

// Run executes all phases on the document at input.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	result := &Result{RunID: uuid.New(), Input: input}
	log := logger.WithFields(logrus.Fields{"run": result.RunID, "document": input})
	log.Info("Starting run")

	extracted, err := p.Extract(ctx, input)
	if err != nil {
		return nil, err
	}
	result.ExtractResult = *extracted

	described, err := p.Describe(ctx, input, extracted.Records)
	if err != nil {
		return nil, err
	}
	result.DescribeResult = *described

	if p.config.Archive != nil {
		p.progress(StageArchive, 0, 1)
		if err := p.config.Archive.Store(ctx, result.RunID, filepath.Base(input), described.Records); err != nil {
			log.WithError(err).Warn("Failed to archive descriptions")
		}
		p.progress(StageArchive, 1, 1)
	}

	merged, err := p.Merge(ctx, input, described.Records)
	if err != nil {
		return nil, err
	}
	result.MergeResult = *merged

	log.WithField("output", merged.Output).Info("Run finished")
	return result, nil
}

func (p *Pipeline) ContextTablePath(input string) string {
	return p.outPath(input, contextSuffix)
}

func (p *Pipeline) DescribedTablePath(input string) string {
	return p.outPath(input, describedSuffix)
}

func (p *Pipeline) OutputDocumentPath(input string) string {
	return p.outPath(input, documentSuffix)
}

// outPath derives an output name from the document's base name. Inputs that
// are themselves phase outputs keep the document's base name.
func (p *Pipeline) outPath(input, suffix string) string {
	base := BaseName(input)
	dir := p.config.OutDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+suffix)
}

// BaseName is the document name an input file was derived from, e.g.
// "report" for report.pdf and report_image_context.csv.
func BaseName(input string) string {
	base := filepath.Base(input)
	for _, suffix := range []string{contextSuffix, describedSuffix, documentSuffix} {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(stage, done, total)
	}
}

func logRowErrors(path string, rowErrs []table.RowError) {
	for _, e := range rowErrs {
		logger.WithFields(logrus.Fields{"table": path, "row": e.Line}).WithError(e).Warn("Skipping row")
	}
}

// String renders a one-line summary of the run.
func (r *Result) String() string {
	return fmt.Sprintf("%d images described (%d skipped, %d fallbacks) -> %s",
		len(r.DescribeResult.Records), len(r.Skipped), len(r.Failures), r.Output)
}
