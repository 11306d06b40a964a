package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xhad/pdfalt/internal/errors"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/pipeline"
	"github.com/xhad/pdfalt/pkg/describe"
	"github.com/xhad/pdfalt/pkg/metadata"
	"github.com/xhad/pdfalt/pkg/pdf"
	"github.com/xhad/pdfalt/pkg/prompt"
)

const samplePDF = "testdata/report.pdf"

// echoGenerator answers like a model that repeats its prompt.
type echoGenerator struct {
	answer string
	err    error
}

func (g echoGenerator) Generate(_ context.Context, record models.ContextRecord) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return prompt.NewWithConfig(prompt.BuilderConfig{}).Build(record, "") + "\n" + g.answer, nil
}

type memSink struct {
	mu     sync.Mutex
	stored map[string][]byte
}

func (s *memSink) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[string][]byte)
	}
	s.stored[name] = data
	return nil
}

type fakeArchive struct {
	runID    uuid.UUID
	document string
	records  []models.DescribedRecord
	err      error
}

func (a *fakeArchive) Store(_ context.Context, runID uuid.UUID, document string, records []models.DescribedRecord) error {
	a.runID, a.document, a.records = runID, document, records
	return a.err
}

func newPipeline(t *testing.T, gen echoGenerator) (*pipeline.Pipeline, string, *memSink, *[]string) {
	t.Helper()
	dir := t.TempDir()
	sink := &memSink{}
	var mu sync.Mutex
	var stages []string
	p := pipeline.NewWithConfig(pipeline.Config{
		Sink:      sink,
		Generator: gen,
		Merger:    metadata.NewWithConfig(metadata.MergerConfig{Assertions: metadata.DefaultAssertions()}),
		OutDir:    dir,
		OnProgress: func(stage string, done, total int) {
			mu.Lock()
			defer mu.Unlock()
			if len(stages) == 0 || stages[len(stages)-1] != stage {
				stages = append(stages, stage)
			}
		},
	})
	return p, dir, sink, &stages
}

func readMetadata(t *testing.T, path string) metadata.Dict {
	t.Helper()
	doc, err := pdf.Open(path)
	require.NoError(t, err)
	defer doc.Close()
	return metadata.FromEntries(doc.Metadata())
}

func TestRun(t *testing.T) {
	p, dir, sink, stages := newPipeline(t, echoGenerator{answer: "A bar chart."})

	result, err := p.Run(context.Background(), samplePDF)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.Equal(t, filepath.Join(dir, "report_image_context.csv"), result.ContextTable)
	assert.Equal(t, filepath.Join(dir, "report_with_alt_text.csv"), result.DescribedTable)
	assert.Equal(t, filepath.Join(dir, "report_with_accessibility.pdf"), result.Output)
	for _, f := range []string{result.ContextTable, result.DescribedTable, result.Output} {
		assert.FileExists(t, f)
	}

	require.Len(t, result.DescribeResult.Records, 1)
	assert.Equal(t, "image_p1_1.png", result.DescribeResult.Records[0].ImageName)
	assert.Equal(t, "A bar chart.", result.DescribeResult.Records[0].Description)
	assert.Empty(t, result.Failures)
	assert.Contains(t, sink.stored, "image_p1_1.png")

	md := readMetadata(t, result.Output)
	alt, _ := md.Get("AltText")
	assert.Equal(t, "image_p1_1.png: A bar chart.", alt)
	tagged, _ := md.Get("TaggedPDF")
	assert.Equal(t, "Yes", tagged)
	title, _ := md.Get("Title")
	assert.Equal(t, "Quarterly report", title)

	assert.Equal(t, []string{pipeline.StageExtract, pipeline.StageDescribe, pipeline.StageMerge}, *stages)
}

func TestRunArchives(t *testing.T) {
	archive := &fakeArchive{err: errors.New("database unavailable")}
	dir := t.TempDir()
	p := pipeline.NewWithConfig(pipeline.Config{
		Generator: echoGenerator{answer: "A chart"},
		Archive:   archive,
		OutDir:    dir,
	})

	result, err := p.Run(context.Background(), samplePDF)
	require.NoError(t, err, "archive failures are not fatal")
	assert.Equal(t, result.RunID, archive.runID)
	assert.Equal(t, "report.pdf", archive.document)
	assert.Len(t, archive.records, 1)
}

func TestRunGeneratorFailureUsesFallback(t *testing.T) {
	p, _, _, _ := newPipeline(t, echoGenerator{err: errors.New("model offline")})

	result, err := p.Run(context.Background(), samplePDF)
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, describe.FallbackDescription, result.DescribeResult.Records[0].Description)

	md := readMetadata(t, result.Output)
	alt, _ := md.Get("AltText")
	assert.Equal(t, "image_p1_1.png: "+describe.FallbackDescription, alt)
}

func TestPhasesFromFiles(t *testing.T) {
	p, dir, _, _ := newPipeline(t, echoGenerator{answer: "A chart"})
	ctx := context.Background()

	extracted, err := p.Extract(ctx, samplePDF)
	require.NoError(t, err)

	described, err := p.DescribeFile(ctx, extracted.ContextTable)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_with_alt_text.csv"), described.DescribedTable)

	// A hand-edited table with a broken row still merges.
	edited := described.DescribedTable
	data, err := os.ReadFile(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(edited, append(data, []byte("broken\n")...), 0o644))

	merged, err := p.MergeFile(ctx, samplePDF, edited)
	require.NoError(t, err)
	assert.Len(t, merged.RowErrors, 1)

	md := readMetadata(t, merged.Output)
	alt, _ := md.Get("AltText")
	assert.Equal(t, "image_p1_1.png: A chart", alt)
}

func TestFatalErrors(t *testing.T) {
	p, _, _, _ := newPipeline(t, echoGenerator{})
	ctx := context.Background()

	_, err := p.Extract(ctx, "testdata/missing.pdf")
	assert.True(t, apperrors.IsFatal(err))

	_, err = p.Merge(ctx, "testdata/missing.pdf", nil)
	assert.True(t, apperrors.IsFatal(err))

	noGen := pipeline.NewWithConfig(pipeline.Config{OutDir: t.TempDir()})
	_, err = noGen.Describe(ctx, "report.pdf", nil)
	assert.ErrorIs(t, err, pipeline.ErrNoGenerator)
	assert.True(t, apperrors.IsFatal(err))
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":                    "report",
		"dir/report.pdf":                "report",
		"report_image_context.csv":      "report",
		"report_with_alt_text.csv":      "report",
		"report_with_accessibility.pdf": "report",
		"_image_context.csv":            "_image_context",
		"archive.tar.gz":                "archive.tar",
	}
	for in, want := range tests {
		assert.Equal(t, want, pipeline.BaseName(in), in)
	}
}
