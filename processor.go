package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// builds the sink client for a resolved re-ingestion target
type PutterFactory func(ctx context.Context, target StreamTarget) (BatchPutter, error)

// Processor handles one transformation invocation at a time: transform, divert what
// does not fit, re-ingest the diverted records, answer with the per-record results.
type Processor struct {
	cfg       Config
	log       zerolog.Logger
	metrics   *Metrics
	newPutter PutterFactory
	now       func() time.Time
}

func NewProcessor(cfg Config, metrics *Metrics) *Processor {
	return &Processor{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   metrics,
		newPutter: newAWSPutter,
		now:       time.Now,
	}
}

func newAWSPutter(ctx context.Context, target StreamTarget) (BatchPutter, error) {
	awsCFG, err := config.LoadDefaultConfig(ctx, config.WithRegion(target.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	switch target.Kind {
	case SinkKinesis:
		return NewKinesisPutter(awsCFG), nil
	case SinkFirehose:
		return NewFirehosePutter(awsCFG), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", target.Kind)
	}
}

// Handle returns an error only when diverted records could not be re-ingested. In that
// case no partial result is returned and the caller is expected to retry the batch.
func (p *Processor) Handle(ctx context.Context, ev TransformationEvent) (*Response, error) {
	invocationID := ev.InvocationID
	if invocationID == "" {
		invocationID = xid.New().String()
	}
	il := p.log.With().Str("invocation_id", invocationID).Logger()
	p.metrics.Invocations.Inc()

	assembler := NewAssembler(il)
	assembler.now = p.now
	outputs := assembler.Assemble(ev.Records)

	target := targetForEvent(ev)
	records, batches := NewPartitioner(p.cfg.MaxSize, il).Partition(ev.Records, outputs, target.Keyed())

	if err := p.reingest(ctx, il, target, batches, len(ev.Records)); err != nil {
		return nil, err
	}

	p.recordResults(il, records)
	return &Response{Records: records}, nil
}

func (p *Processor) reingest(ctx context.Context, il zerolog.Logger, target StreamTarget, batches []DeliveryBatch, inputCount int) error {
	if len(batches) == 0 {
		il.Info().Msg("No records to be reingested")
		return nil
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}

	target, err := target.resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve re-ingestion target: %w", err)
	}

	putter, err := p.newPutter(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", target.Kind, err)
	}
	deliverer := NewDeliverer(putter, p.cfg.MaxAttempts, il, p.metrics)

	soFar := 0
	for _, batch := range batches {
		if err := deliverer.Deliver(ctx, target.Name, batch); err != nil {
			return fmt.Errorf("failed to reingest into %s %s: %w", target.Kind, target.Name, err)
		}
		soFar += len(batch)
		p.metrics.Reingested.Add(float64(len(batch)))
		il.Info().
			Str("stream", target.Name).
			Msgf("Reingested %d/%d records out of %d", soFar, total, inputCount)
	}
	return nil
}

// recordResults counts the final per-record results, after diversion, and logs the
// invocation summary.
func (p *Processor) recordResults(il zerolog.Logger, records []OutputRecord) {
	counts := make(map[Result]int, 3)
	for _, r := range records {
		counts[r.Result]++
		p.metrics.Records.WithLabelValues(string(r.Result)).Inc()
		if r.Result == ResultOk {
			p.metrics.TransformedBytes.Add(float64(len(r.Data)))
		}
	}
	il.Info().
		Int("ok", counts[ResultOk]).
		Int("dropped", counts[ResultDropped]).
		Int("failed", counts[ResultFailed]).
		Msgf("Returning %d records", len(records))
}
