package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/xhad/pdfalt/internal/pipeline"
	"github.com/xhad/pdfalt/internal/types"
	cfgPkg "github.com/xhad/pdfalt/pkg/config"
	"github.com/xhad/pdfalt/pkg/describe"
	"github.com/xhad/pdfalt/pkg/imagestore"
	"github.com/xhad/pdfalt/pkg/llm"
	"github.com/xhad/pdfalt/pkg/metadata"
	"github.com/xhad/pdfalt/pkg/pdfxml"
	"github.com/xhad/pdfalt/pkg/store"
)

type pipelineOptions struct {
	// input names the document, used to prefix uploaded images
	input     string
	generator bool
	archive   *store.Archive
	progress  pipeline.ProgressFunc
}

func newPipeline(c *cfgPkg.Config, opts pipelineOptions) (*pipeline.Pipeline, error) {
	sink, err := newSink(c, opts.input)
	if err != nil {
		return nil, err
	}

	config := pipeline.Config{
		Open:      newOpener(source),
		Threshold: c.Context.TitleThreshold,
		Sink:      sink,
		Describe: describe.Options{
			Workers: c.LLM.Workers,
			Timeout: c.LLM.Timeout,
		},
		Merger: metadata.NewWithConfig(metadata.MergerConfig{
			AltTextKey: c.Accessibility.AltTextKey,
			Assertions: c.Accessibility.Assertions,
		}),
		OutDir:     outDir,
		OnProgress: opts.progress,
	}
	if c.LLM.RateLimit > 0 {
		config.Describe.Limiter = rate.NewLimiter(rate.Limit(c.LLM.RateLimit), 1)
	}
	if opts.archive != nil {
		config.Archive = opts.archive
	}

	if opts.generator {
		gen, err := newGenerator(c)
		if err != nil {
			return nil, err
		}
		config.Generator = gen
	}

	return pipeline.NewWithConfig(config), nil
}

func newGenerator(c *cfgPkg.Config) (*llm.Describer, error) {
	return llm.NewWithConfig(llm.DescriberConfig{
		Provider:        c.LLM.Provider,
		Model:           c.LLM.Model,
		BaseURL:         c.LLM.BaseURL,
		APIKey:          c.LLM.APIKey,
		Temperature:     c.LLM.Temperature,
		MaxTokens:       c.LLM.MaxTokens,
		MaxContextChars: c.LLM.MaxContextChars,
		ImageDir:        c.Images.Dir,
	})
}

func newSink(c *cfgPkg.Config, input string) (types.ImageSink, error) {
	switch c.Images.Sink {
	case "none":
		return imagestore.Discard{}, nil
	case "azure":
		prefix := ""
		if input != "" {
			prefix = pipeline.BaseName(input)
		}
		return imagestore.NewAzure(imagestore.AzureConfig{
			AccountName: c.Images.Azure.AccountName,
			AccountKey:  c.Images.Azure.AccountKey,
			Container:   c.Images.Azure.Container,
			Prefix:      prefix,
		})
	default:
		return imagestore.NewDir(c.Images.Dir), nil
	}
}

// newOpener returns the page model reader for the --source flag.
func newOpener(source string) pipeline.OpenFunc {
	if source == "pdfxml" {
		return func(path string) (types.DocumentSource, error) {
			return pdfxml.Load(xmlPath(path))
		}
	}
	return pipeline.OpenPDF
}

// xmlPath is where `pdftohtml -xml report.pdf` writes its output: report.xml.
func xmlPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".xml"
}

// newArchive opens the description archive, or returns nil when no
// database is configured.
func newArchive(ctx context.Context, c *cfgPkg.Config) (*store.Archive, error) {
	if c.Database.URL == "" {
		return nil, nil
	}

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   c.LLM.EmbeddingModel,
		BaseURL: ollamaURL(c),
	})
	if err != nil {
		return nil, err
	}

	archive, err := store.NewWithConfig(ctx, store.ArchiveConfig{
		ConnString: c.Database.URL,
		TableName:  c.Database.TableName,
		VectorDim:  c.Database.VectorDim,
		BatchSize:  c.Database.BatchSize,
	}, emb)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %v", err)
	}
	return archive, nil
}

// ollamaURL is the embedding server. Embeddings always come from Ollama,
// whichever provider generates descriptions.
func ollamaURL(c *cfgPkg.Config) string {
	if c.LLM.Provider == "ollama" {
		return c.LLM.BaseURL
	}
	return ""
}

// failedRunner reports a pipeline that could not be built.
type failedRunner struct {
	err error
}

func (f failedRunner) Run(context.Context, string) (*pipeline.Result, error) {
	return nil, f.err
}
