package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

var ErrInvalidStreamARN = errors.New("invalid stream ARN")

type SinkKind string

const (
	SinkFirehose SinkKind = "firehose"
	SinkKinesis  SinkKind = "kinesis"
)

// StreamTarget is where diverted records go back to: the Kinesis stream feeding the
// delivery stream when there is one, otherwise the delivery stream itself.
type StreamTarget struct {
	Kind   SinkKind
	ARN    string
	Region string
	Name   string
}

// Keyed reports whether records need a partition key.
func (t StreamTarget) Keyed() bool { return t.Kind == SinkKinesis }

func targetForEvent(ev TransformationEvent) StreamTarget {
	if ev.SourceKinesisStreamArn != "" {
		return StreamTarget{Kind: SinkKinesis, ARN: ev.SourceKinesisStreamArn}
	}
	return StreamTarget{Kind: SinkFirehose, ARN: ev.DeliveryStreamArn}
}

// resolve fills Region and Name from the ARN, e.g.
// arn:aws:firehose:us-east-1:123456789012:deliverystream/my-stream
func (t StreamTarget) resolve() (StreamTarget, error) {
	region, name, err := parseStreamARN(t.ARN)
	if err != nil {
		return t, err
	}
	t.Region = region
	t.Name = name
	return t, nil
}

func parseStreamARN(raw string) (region, name string, err error) {
	parsed, err := arn.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidStreamARN, raw, err)
	}

	// deliverystream/<name>, stream/<name> or the older <type>:<name> form
	if _, after, ok := strings.Cut(parsed.Resource, "/"); ok {
		name = after
	} else if _, after, ok := strings.Cut(parsed.Resource, ":"); ok {
		name = after
	}

	if parsed.Region == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidStreamARN, raw)
	}
	return parsed.Region, name, nil
}
