package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

type KinesisClientInterface interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// KinesisPutter re-ingests into the source data stream with PutRecords, keeping each
// record's original partition key.
type KinesisPutter struct {
	client KinesisClientInterface
}

func NewKinesisPutter(awsConfig aws.Config) *KinesisPutter {
	return &KinesisPutter{client: kinesis.NewFromConfig(awsConfig)}
}

func (p *KinesisPutter) Name() string { return "kinesis" }

func (p *KinesisPutter) PutBatch(ctx context.Context, stream string, records []ReingestionRecord) (*PutBatchOutput, error) {
	entries := make([]types.PutRecordsRequestEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, types.PutRecordsRequestEntry{
			Data:         r.Data,
			PartitionKey: aws.String(r.PartitionKey),
		})
	}

	resp, err := p.client.PutRecords(ctx, &kinesis.PutRecordsInput{
		StreamName: aws.String(stream),
		Records:    entries,
	})
	if err != nil {
		return nil, err
	}

	out := &PutBatchOutput{
		FailedCount: int(aws.ToInt32(resp.FailedRecordCount)),
		Outcomes:    make([]PutOutcome, 0, len(resp.Records)),
	}
	for _, res := range resp.Records {
		out.Outcomes = append(out.Outcomes, PutOutcome{
			ErrorCode:    aws.ToString(res.ErrorCode),
			ErrorMessage: aws.ToString(res.ErrorMessage),
		})
	}
	return out, nil
}
