package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	ftypes "github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	ktypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func deliveryBatch(n int) DeliveryBatch {
	batch := make(DeliveryBatch, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, ReingestionRecord{Data: []byte(fmt.Sprintf("payload-%d", i))})
	}
	return batch
}

func recordsOfLen(n int) interface{} {
	return mock.MatchedBy(func(records []ReingestionRecord) bool { return len(records) == n })
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", recordsOfLen(3)).
		Return(&PutBatchOutput{FailedCount: 0}, nil).Once()

	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), testMetrics())
	err := d.Deliver(context.Background(), "stream", deliveryBatch(3))

	assert.NoError(t, err)
	putter.AssertExpectations(t)
	putter.AssertNumberOfCalls(t, "PutBatch", 1)
}

func TestDeliverRetriesOnlyFailedRecords(t *testing.T) {
	batch := deliveryBatch(10)
	outcomes := make([]PutOutcome, 10)
	outcomes[3] = PutOutcome{ErrorCode: "ServiceUnavailableException", ErrorMessage: "slow down"}
	outcomes[7] = PutOutcome{ErrorCode: "InternalFailure"}

	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", recordsOfLen(10)).
		Return(&PutBatchOutput{FailedCount: 2, Outcomes: outcomes}, nil).Once()
	putter.On("PutBatch", mock.Anything, "stream", mock.MatchedBy(func(records []ReingestionRecord) bool {
		return len(records) == 2 &&
			string(records[0].Data) == "payload-3" &&
			string(records[1].Data) == "payload-7"
	})).Return(&PutBatchOutput{FailedCount: 0, Outcomes: make([]PutOutcome, 2)}, nil).Once()

	metrics := testMetrics()
	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), metrics)
	err := d.Deliver(context.Background(), "stream", batch)

	require.NoError(t, err)
	putter.AssertExpectations(t)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RetriedRecords))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DeliveryAttempts.WithLabelValues("mock")))
}

func TestDeliverRetriesWholeBatchOnCallError(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", recordsOfLen(4)).
		Return(nil, errors.New("connection reset")).Once()
	putter.On("PutBatch", mock.Anything, "stream", recordsOfLen(4)).
		Return(&PutBatchOutput{}, nil).Once()

	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), testMetrics())
	err := d.Deliver(context.Background(), "stream", deliveryBatch(4))

	require.NoError(t, err)
	putter.AssertNumberOfCalls(t, "PutBatch", 2)
}

func TestDeliverFailsAfterMaxAttempts(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", mock.Anything).
		Return(nil, errors.New("throttled"))

	metrics := testMetrics()
	d := NewDeliverer(putter, 3, zerolog.Nop(), metrics)
	err := d.Deliver(context.Background(), "stream", deliveryBatch(5))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryExhausted))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "throttled")
	putter.AssertNumberOfCalls(t, "PutBatch", 3)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DeliveryFailures))
}

func TestDeliverReportsDistinctErrorCodes(t *testing.T) {
	outcomes := []PutOutcome{
		{ErrorCode: "ServiceUnavailableException"},
		{ErrorCode: "ServiceUnavailableException"},
		{ErrorCode: "InternalFailure"},
	}
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", mock.Anything).
		Return(&PutBatchOutput{FailedCount: 3, Outcomes: outcomes}, nil)

	d := NewDeliverer(putter, 1, zerolog.Nop(), testMetrics())
	err := d.Deliver(context.Background(), "stream", deliveryBatch(3))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Individual error codes: ServiceUnavailableException,InternalFailure")
	putter.AssertNumberOfCalls(t, "PutBatch", 1)
}

func TestDeliverAcceptsFailureCountWithoutErrorCodes(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", mock.Anything).
		Return(&PutBatchOutput{FailedCount: 1, Outcomes: make([]PutOutcome, 3)}, nil)

	metrics := testMetrics()
	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), metrics)
	err := d.Deliver(context.Background(), "stream", deliveryBatch(3))

	assert.NoError(t, err)
	putter.AssertNumberOfCalls(t, "PutBatch", 1)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RetriedRecords))
}

func TestDeliverOutcomeMismatchIsFatal(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, "stream", mock.Anything).
		Return(&PutBatchOutput{FailedCount: 1, Outcomes: []PutOutcome{{ErrorCode: "X"}}}, nil)

	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), testMetrics())
	err := d.Deliver(context.Background(), "stream", deliveryBatch(2))

	assert.True(t, errors.Is(err, ErrOutcomeMismatch))
	putter.AssertNumberOfCalls(t, "PutBatch", 1)
}

func TestDeliverStopsWhenContextDone(t *testing.T) {
	putter := new(MockBatchPutter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDeliverer(putter, defaultMaxAttempts, zerolog.Nop(), testMetrics())
	err := d.Deliver(ctx, "stream", deliveryBatch(2))

	assert.True(t, errors.Is(err, context.Canceled))
	putter.AssertNotCalled(t, "PutBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestFirehosePutter(t *testing.T) {
	client := new(MockFirehoseClient)
	client.On("PutRecordBatch", mock.Anything, mock.MatchedBy(func(in *firehose.PutRecordBatchInput) bool {
		return aws.ToString(in.DeliveryStreamName) == "delivery" &&
			len(in.Records) == 2 &&
			string(in.Records[1].Data) == "payload-1"
	})).Return(&firehose.PutRecordBatchOutput{
		FailedPutCount: aws.Int32(1),
		RequestResponses: []ftypes.PutRecordBatchResponseEntry{
			{RecordId: aws.String("a")},
			{ErrorCode: aws.String("ServiceUnavailableException"), ErrorMessage: aws.String("slow down")},
		},
	}, nil)

	p := &FirehosePutter{client: client}
	out, err := p.PutBatch(context.Background(), "delivery", deliveryBatch(2))

	require.NoError(t, err)
	assert.Equal(t, 1, out.FailedCount)
	assert.Equal(t, []PutOutcome{
		{},
		{ErrorCode: "ServiceUnavailableException", ErrorMessage: "slow down"},
	}, out.Outcomes)
	client.AssertExpectations(t)
}

func TestFirehosePutterCallError(t *testing.T) {
	client := new(MockFirehoseClient)
	client.On("PutRecordBatch", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	p := &FirehosePutter{client: client}
	out, err := p.PutBatch(context.Background(), "delivery", deliveryBatch(1))

	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, out)
}

func TestKinesisPutter(t *testing.T) {
	batch := DeliveryBatch{
		{Data: []byte("one"), PartitionKey: "pk-1"},
		{Data: []byte("two"), PartitionKey: "pk-2"},
	}

	client := new(MockKinesisClient)
	client.On("PutRecords", mock.Anything, mock.MatchedBy(func(in *kinesis.PutRecordsInput) bool {
		return aws.ToString(in.StreamName) == "source" &&
			len(in.Records) == 2 &&
			aws.ToString(in.Records[0].PartitionKey) == "pk-1" &&
			string(in.Records[1].Data) == "two"
	})).Return(&kinesis.PutRecordsOutput{
		FailedRecordCount: aws.Int32(0),
		Records: []ktypes.PutRecordsResultEntry{
			{SequenceNumber: aws.String("1"), ShardId: aws.String("shardId-000000000000")},
			{SequenceNumber: aws.String("2"), ShardId: aws.String("shardId-000000000000")},
		},
	}, nil)

	p := &KinesisPutter{client: client}
	out, err := p.PutBatch(context.Background(), "source", batch)

	require.NoError(t, err)
	assert.Equal(t, 0, out.FailedCount)
	assert.Len(t, out.Outcomes, 2)
	assert.Equal(t, "kinesis", p.Name())
	client.AssertExpectations(t)
}
