// Package describe attaches a generated description to every record of a
// context table. A failed generation never aborts the batch.
package describe

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "github.com/xhad/pdfalt/internal/errors"
	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
	"github.com/xhad/pdfalt/pkg/prompt"
)

// FallbackDescription is stored for a record whose generation failed.
const FallbackDescription = "Alternative text not available"

type Options struct {
	// Workers is the number of concurrent generator calls. Values below 2
	// run sequentially. Only raise it for generators that are safe for
	// concurrent use.
	Workers int
	// Timeout bounds each generator call. Zero means no per-call timeout.
	Timeout time.Duration
	// Limiter throttles generator calls. Optional.
	Limiter *rate.Limiter
	// OnRecord is called once per finished record. It may be called from
	// several goroutines at once when Workers > 1.
	OnRecord func(record models.DescribedRecord, err error)
}

// Failure explains why a record received the fallback description.
type Failure struct {
	Index     int
	ImageName string
	Err       error
}

// Batch is the described table plus the failures behind any fallbacks.
type Batch struct {
	Records  []models.DescribedRecord
	Failures []Failure
}

// Describe calls gen for each record and returns a new table in the same
// order as records. Errors, timeouts and cancellation of a single call
// produce FallbackDescription for that record only.
func Describe(ctx context.Context, records []models.ContextRecord, gen types.Generator, opts Options) Batch {
	described := make([]models.DescribedRecord, len(records))
	errs := make([]error, len(records))

	describeOne := func(i int) {
		description, err := generate(ctx, gen, records[i], opts)
		if err != nil {
			err = apperrors.NewGenerationError(fmt.Sprintf("describe %s", records[i].ImageName), err)
			logger.WithFields(logrus.Fields{"image": records[i].ImageName}).WithError(err).Warn("Using fallback description")
			description = FallbackDescription
		}
		described[i] = models.DescribedRecord{ContextRecord: records[i], Description: description}
		errs[i] = err
		if opts.OnRecord != nil {
			opts.OnRecord(described[i], err)
		}
	}

	if opts.Workers < 2 {
		for i := range records {
			describeOne(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i := range records {
			i := i
			g.Go(func() error {
				describeOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	batch := Batch{Records: described}
	for i, err := range errs {
		if err != nil {
			batch.Failures = append(batch.Failures, Failure{Index: i, ImageName: records[i].ImageName, Err: err})
		}
	}
	return batch
}

func generate(ctx context.Context, gen types.Generator, record models.ContextRecord, opts Options) (string, error) {
	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	response, err := gen.Generate(callCtx, record)
	if err != nil {
		return "", err
	}
	return prompt.StripEcho(response), nil
}
