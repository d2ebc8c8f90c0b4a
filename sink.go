package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const defaultMaxAttempts = 20

var (
	ErrDeliveryExhausted = errors.New("re-ingestion delivery exhausted")
	ErrOutcomeMismatch   = errors.New("sink outcome count does not match submitted records")
)

// BatchPutter submits one batch to a stream and reports per-record outcomes in
// submission order.
type BatchPutter interface {
	Name() string
	PutBatch(ctx context.Context, stream string, records []ReingestionRecord) (*PutBatchOutput, error)
}

type PutBatchOutput struct {
	FailedCount int
	Outcomes    []PutOutcome
}

// an empty ErrorCode means the record was accepted
type PutOutcome struct {
	ErrorCode    string
	ErrorMessage string
}

type Deliverer struct {
	putter      BatchPutter
	maxAttempts int
	log         zerolog.Logger
	metrics     *Metrics
}

func NewDeliverer(putter BatchPutter, maxAttempts int, logger zerolog.Logger, metrics *Metrics) *Deliverer {
	return &Deliverer{
		putter:      putter,
		maxAttempts: maxAttempts,
		log:         logger.With().Str("component", "sink").Str("sink", putter.Name()).Logger(),
		metrics:     metrics,
	}
}

func (d *Deliverer) Deliver(ctx context.Context, stream string, batch DeliveryBatch) error {
	return d.deliver(ctx, stream, batch, 0)
}

// deliver submits records and resubmits only the rejected subset, immediately, until
// everything is accepted or maxAttempts submissions have been made.
func (d *Deliverer) deliver(ctx context.Context, stream string, records []ReingestionRecord, attemptsMade int) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("delivery to %s interrupted: %w", stream, err)
		}

		d.log.Debug().
			Str("stream", stream).
			Int("records", len(records)).
			Int("attempts_made", attemptsMade).
			Int("max_attempts", d.maxAttempts).
			Msg("Putting records to stream")

		failed, errMsg, err := d.attempt(ctx, stream, records)
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			return nil
		}

		if attemptsMade+1 >= d.maxAttempts {
			d.metrics.DeliveryFailures.Inc()
			return fmt.Errorf("%w: could not put records after %d attempts. %s", ErrDeliveryExhausted, d.maxAttempts, errMsg)
		}

		d.log.Error().
			Str("stream", stream).
			Int("failed", len(failed)).
			Msgf("Some records failed while putting to %s, retrying. %s", d.putter.Name(), errMsg)

		d.metrics.RetriedRecords.Add(float64(len(failed)))
		records = failed
		attemptsMade++
	}
}

// attempt makes one submission and returns the records that must be retried with a
// diagnostic. A non-nil error is a protocol violation and is not retried.
func (d *Deliverer) attempt(ctx context.Context, stream string, records []ReingestionRecord) ([]ReingestionRecord, string, error) {
	d.metrics.DeliveryAttempts.WithLabelValues(d.putter.Name()).Inc()

	out, err := d.putter.PutBatch(ctx, stream, records)
	if err != nil {
		return records, err.Error(), nil
	}
	if out == nil || out.FailedCount == 0 {
		return nil, "", nil
	}

	if len(out.Outcomes) != len(records) {
		return nil, "", fmt.Errorf("%w: submitted %d, got %d outcomes", ErrOutcomeMismatch, len(records), len(out.Outcomes))
	}

	var failed []ReingestionRecord
	var codes []string
	seen := make(map[string]bool)
	for i, res := range out.Outcomes {
		if res.ErrorCode == "" {
			continue
		}
		failed = append(failed, records[i])
		if !seen[res.ErrorCode] {
			seen[res.ErrorCode] = true
			codes = append(codes, res.ErrorCode)
		}
	}

	if len(failed) == 0 {
		d.log.Warn().Int("failed_count", out.FailedCount).Msg("Sink reported failures but no entry carries an error code")
	}

	return failed, "Individual error codes: " + strings.Join(codes, ","), nil
}
