package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Assembler turns an input batch into one output record per input record, in order.
type Assembler struct {
	log zerolog.Logger
	now func() time.Time
}

func NewAssembler(logger zerolog.Logger) *Assembler {
	return &Assembler{
		log: logger.With().Str("component", "assembler").Logger(),
		now: time.Now,
	}
}

func (a *Assembler) Assemble(records []InputRecord) []OutputRecord {
	out := make([]OutputRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, a.processRecord(rec))
	}
	return out
}

// processRecord never panics out and never fails the batch; anything unexpected becomes
// a ProcessingFailed record for this id alone.
func (a *Assembler) processRecord(rec InputRecord) (out OutputRecord) {
	rl := a.log.With().Str("record_id", rec.RecordID).Logger()

	defer func() {
		if r := recover(); r != nil {
			rl.Error().Interface("panic", r).Msg("Recovered from panic while transforming record")
			out = OutputRecord{RecordID: rec.RecordID, Result: ResultFailed}
		}
	}()

	raw, err := rec.Payload()
	if err != nil {
		rl.Error().Err(err).Msg("Failed to decode record data")
		return OutputRecord{RecordID: rec.RecordID, Result: ResultFailed}
	}

	env, err := classify(raw, a.now)
	if err != nil {
		rl.Warn().Err(err).Msg("Record could not be classified")
		return OutputRecord{RecordID: rec.RecordID, Result: ResultFailed}
	}

	if _, ok := env.(ControlEnvelope); ok {
		rl.Debug().Msg("Dropping control message")
		return OutputRecord{RecordID: rec.RecordID, Result: ResultDropped}
	}

	data, err := a.transform(env)
	if err != nil {
		rl.Error().Err(err).Msg("Failed to transform record")
		return OutputRecord{RecordID: rec.RecordID, Result: ResultFailed}
	}

	rl.Info().Int("size", len(data)).Msg("Processed record")
	rl.Debug().Str("doc", string(data)).Msg("Transformed record")

	return OutputRecord{RecordID: rec.RecordID, Result: ResultOk, Data: data}
}

func (a *Assembler) transform(env Envelope) ([]byte, error) {
	switch e := env.(type) {
	case PlaintextEnvelope:
		event := NewObject()
		event.Set("timestamp", formatTimestamp(e.Timestamp))
		event.Set("message", e.Message)
		return wrapEvent(event)

	case DataEnvelope:
		var buf bytes.Buffer
		now := a.now()
		for i, ev := range e.LogEvents {
			line, err := normalizeEvent(ev, e.Owner, e.LogGroup, e.LogStream, now)
			if err != nil {
				return nil, fmt.Errorf("log event %d: %w", i, err)
			}
			buf.Write(line)
		}
		return buf.Bytes(), nil

	case ContainerLogEnvelope:
		return wrapEvent(e.Fields)

	case OpaqueEnvelope:
		return wrapEvent(e.Value)
	}

	return nil, fmt.Errorf("no transform for envelope %T", env)
}
