package main

import (
	"encoding/base64"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

const (
	// leaves headroom below the 6MB response limit once base64 and framing are counted
	defaultMaxSize  int64 = 9900000
	maxBatchRecords       = 500
)

type Partitioner struct {
	maxSize int64
	log     zerolog.Logger
}

func NewPartitioner(maxSize int64, logger zerolog.Logger) *Partitioner {
	return &Partitioner{
		maxSize: maxSize,
		log:     logger.With().Str("component", "partitioner").Logger(),
	}
}

// Partition walks outputs in order, keeping a running projected response size over Ok
// records. Once it passes maxSize, every further Ok record is returned as Dropped and
// its original payload is queued for re-ingestion. keyed selects the partition keyed
// wire shape used by Kinesis sources.
//
// outputs is not modified; the returned slice is a new batch.
func (p *Partitioner) Partition(inputs []InputRecord, outputs []OutputRecord, keyed bool) ([]OutputRecord, []DeliveryBatch) {
	byID := make(map[string]InputRecord, len(inputs))
	for _, in := range inputs {
		byID[in.RecordID] = in
	}

	result := make([]OutputRecord, 0, len(outputs))
	var batches []DeliveryBatch
	var open DeliveryBatch
	var projected int64

	for _, rec := range outputs {
		if rec.Result != ResultOk {
			result = append(result, rec)
			continue
		}

		projected += int64(base64.StdEncoding.EncodedLen(len(rec.Data)) + len(rec.RecordID))
		if projected <= p.maxSize {
			result = append(result, rec)
			continue
		}

		src, ok := byID[rec.RecordID]
		if !ok {
			p.log.Error().Str("record_id", rec.RecordID).Msg("No input record for output record")
			result = append(result, OutputRecord{RecordID: rec.RecordID, Result: ResultFailed})
			continue
		}
		reingest, err := newReingestionRecord(src, keyed)
		if err != nil {
			p.log.Error().Err(err).Str("record_id", rec.RecordID).Msg("Cannot recover original payload for re-ingestion")
			result = append(result, OutputRecord{RecordID: rec.RecordID, Result: ResultFailed})
			continue
		}

		p.log.Debug().
			Str("record_id", rec.RecordID).
			Str("projected", humanize.Bytes(uint64(projected))).
			Str("max", humanize.Bytes(uint64(p.maxSize))).
			Msg("Projected size exceeded, adding to reingest")

		result = append(result, OutputRecord{RecordID: rec.RecordID, Result: ResultDropped})
		open = append(open, reingest)

		if len(open) == maxBatchRecords {
			p.log.Debug().Msg("Reingest batch at max, sealing")
			batches = append(batches, open)
			open = nil
		}
	}

	if len(open) > 0 {
		p.log.Debug().Int("count", len(open)).Msg("Sealing final reingest batch")
		batches = append(batches, open)
	}

	return result, batches
}

func newReingestionRecord(in InputRecord, keyed bool) (ReingestionRecord, error) {
	raw, err := in.Payload()
	if err != nil {
		return ReingestionRecord{}, err
	}

	rec := ReingestionRecord{Data: raw}
	if keyed {
		if in.KinesisRecordMetadata != nil && in.KinesisRecordMetadata.PartitionKey != "" {
			rec.PartitionKey = in.KinesisRecordMetadata.PartitionKey
		} else {
			rec.PartitionKey = in.RecordID
		}
	}
	return rec, nil
}
