package main

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
)

// the data transformation event Firehose hands to the processor
type TransformationEvent struct {
	InvocationID           string        `json:"invocationId"`
	DeliveryStreamArn      string        `json:"deliveryStreamArn"`
	SourceKinesisStreamArn string        `json:"sourceKinesisStreamArn,omitempty"`
	Region                 string        `json:"region"`
	Records                []InputRecord `json:"records"`
}

// one record as received; Data is still base64 so a bad payload fails only its own record
type InputRecord struct {
	RecordID                    string                                `json:"recordId"`
	ApproximateArrivalTimestamp int64                                 `json:"approximateArrivalTimestamp,omitempty"`
	Data                        string                                `json:"data"`
	KinesisRecordMetadata       *events.KinesisFirehoseRecordMetadata `json:"kinesisRecordMetadata,omitempty"`
}

func (r InputRecord) Payload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Data)
}

type Result string

const (
	ResultOk      Result = Result(events.KinesisFirehoseTransformedStateOk)
	ResultDropped Result = Result(events.KinesisFirehoseTransformedStateDropped)
	ResultFailed  Result = Result(events.KinesisFirehoseTransformedStateProcessingFailed)
)

type OutputRecord struct {
	RecordID string `json:"recordId"`
	Result   Result `json:"result"`
	Data     []byte `json:"data"`
}

// MarshalJSON emits data only for Ok records, even when the transformed text is empty.
func (r OutputRecord) MarshalJSON() ([]byte, error) {
	type wire struct {
		RecordID string  `json:"recordId"`
		Result   Result  `json:"result"`
		Data     *string `json:"data,omitempty"`
	}
	w := wire{RecordID: r.RecordID, Result: r.Result}
	if r.Result == ResultOk {
		encoded := base64.StdEncoding.EncodeToString(r.Data)
		w.Data = &encoded
	}
	return json.Marshal(w)
}

type Response struct {
	Records []OutputRecord `json:"records"`
}

// the untouched source payload of a record diverted back into the source stream
type ReingestionRecord struct {
	Data         []byte
	PartitionKey string
}

// at most maxBatchRecords records submitted in one sink call
type DeliveryBatch []ReingestionRecord
