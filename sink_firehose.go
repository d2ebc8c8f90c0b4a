package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
)

type FirehoseClientInterface interface {
	PutRecordBatch(ctx context.Context, params *firehose.PutRecordBatchInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordBatchOutput, error)
}

// FirehosePutter re-ingests into a delivery stream with PutRecordBatch. Records carry
// data only.
type FirehosePutter struct {
	client FirehoseClientInterface
}

func NewFirehosePutter(awsConfig aws.Config) *FirehosePutter {
	return &FirehosePutter{client: firehose.NewFromConfig(awsConfig)}
}

func (p *FirehosePutter) Name() string { return "firehose" }

func (p *FirehosePutter) PutBatch(ctx context.Context, stream string, records []ReingestionRecord) (*PutBatchOutput, error) {
	entries := make([]types.Record, 0, len(records))
	for _, r := range records {
		entries = append(entries, types.Record{Data: r.Data})
	}

	resp, err := p.client.PutRecordBatch(ctx, &firehose.PutRecordBatchInput{
		DeliveryStreamName: aws.String(stream),
		Records:            entries,
	})
	if err != nil {
		return nil, err
	}

	out := &PutBatchOutput{
		FailedCount: int(aws.ToInt32(resp.FailedPutCount)),
		Outcomes:    make([]PutOutcome, 0, len(resp.RequestResponses)),
	}
	for _, res := range resp.RequestResponses {
		out.Outcomes = append(out.Outcomes, PutOutcome{
			ErrorCode:    aws.ToString(res.ErrorCode),
			ErrorMessage: aws.ToString(res.ErrorMessage),
		})
	}
	return out, nil
}
