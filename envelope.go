package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	messageTypeControl = "CONTROL_MESSAGE"
	messageTypeData    = "DATA_MESSAGE"
)

var (
	ErrUnknownMessageType   = errors.New("unrecognized messageType")
	ErrMalformedDataMessage = errors.New("malformed DATA_MESSAGE")
	ErrInvalidEncoding      = errors.New("payload is not valid UTF-8")
	ErrCorruptGzip          = errors.New("corrupt gzip payload")
)

var gzipMagic = []byte{0x1f, 0x8b, 0x08}

// upper bound on a decompressed payload; a Firehose record is at most 1000 KiB
// compressed, anything inflating past this is treated as corrupt
const maxDecompressedSize = 64 << 20

// Envelope is the classified top-level shape of one raw record. The set of
// implementations is closed: Control, Data, ContainerLog, Opaque and Plaintext.
type Envelope interface {
	envelope()
}

// subscription health check sent by CloudWatch Logs, carries no events
type ControlEnvelope struct{}

type DataEnvelope struct {
	Owner     string
	LogGroup  string
	LogStream string
	LogEvents []*Object
}

// docker style log line; Fields already has a JSON "log" merged in when it parsed
type ContainerLogEnvelope struct {
	Fields *Object
}

// valid JSON of a shape we do not know, passed through as is
type OpaqueEnvelope struct {
	Value any
}

type PlaintextEnvelope struct {
	Timestamp time.Time
	Message   string
}

func (ControlEnvelope) envelope()      {}
func (DataEnvelope) envelope()         {}
func (ContainerLogEnvelope) envelope() {}
func (OpaqueEnvelope) envelope()       {}
func (PlaintextEnvelope) envelope()    {}

func isGzip(raw []byte) bool {
	return bytes.HasPrefix(raw, gzipMagic)
}

// decodeDocument gunzips raw when it carries the gzip magic and returns the text.
func decodeDocument(raw []byte) (string, error) {
	if isGzip(raw) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorruptGzip, err)
		}
		defer zr.Close()

		plain, err := io.ReadAll(io.LimitReader(zr, maxDecompressedSize+1))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorruptGzip, err)
		}
		if len(plain) > maxDecompressedSize {
			return "", fmt.Errorf("%w: decompressed payload exceeds %d bytes", ErrCorruptGzip, maxDecompressedSize)
		}
		raw = plain
	}

	if !utf8.Valid(raw) {
		return "", ErrInvalidEncoding
	}
	return string(raw), nil
}

// classify maps one raw payload to exactly one envelope variant, or to an error that
// the assembler turns into a ProcessingFailed record. Text that is not JSON is never
// an error.
func classify(raw []byte, now func() time.Time) (Envelope, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return classifyDocument(doc, now)
}

func classifyDocument(doc string, now func() time.Time) (Envelope, error) {
	parsed, err := parseJSON([]byte(doc))
	if err != nil {
		return PlaintextEnvelope{Timestamp: now().UTC(), Message: doc}, nil
	}

	obj, ok := parsed.(*Object)
	if !ok {
		return OpaqueEnvelope{Value: parsed}, nil
	}

	if mt, ok := obj.Get("messageType"); ok {
		switch mt {
		case messageTypeControl:
			return ControlEnvelope{}, nil
		case messageTypeData:
			return newDataEnvelope(obj)
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnknownMessageType, mt)
		}
	}

	if obj.Has("container_id") && obj.Has("log") {
		mergeContainerLog(obj)
		return ContainerLogEnvelope{Fields: obj}, nil
	}

	return OpaqueEnvelope{Value: obj}, nil
}

func newDataEnvelope(obj *Object) (Envelope, error) {
	var env DataEnvelope

	for key, dst := range map[string]*string{
		"owner":     &env.Owner,
		"logGroup":  &env.LogGroup,
		"logStream": &env.LogStream,
	} {
		v, ok := obj.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedDataMessage, key)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a string", ErrMalformedDataMessage, key)
		}
		*dst = s
	}

	v, ok := obj.Get("logEvents")
	if !ok {
		return nil, fmt.Errorf("%w: missing logEvents", ErrMalformedDataMessage)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: logEvents is not an array", ErrMalformedDataMessage)
	}

	env.LogEvents = make([]*Object, 0, len(list))
	for i, item := range list {
		ev, ok := item.(*Object)
		if !ok {
			return nil, fmt.Errorf("%w: logEvents[%d] is not an object", ErrMalformedDataMessage, i)
		}
		env.LogEvents = append(env.LogEvents, ev)
	}
	return env, nil
}

// mergeContainerLog lifts the fields of a JSON encoded "log" string into the envelope
// and removes "log". Anything else leaves the envelope untouched.
func mergeContainerLog(obj *Object) {
	v, _ := obj.Get("log")
	s, ok := v.(string)
	if !ok {
		return
	}
	parsed, err := parseJSON([]byte(s))
	if err != nil {
		return
	}
	inner, ok := parsed.(*Object)
	if !ok {
		return
	}
	for _, k := range inner.Keys() {
		iv, _ := inner.Get(k)
		obj.Set(k, iv)
	}
	obj.Delete("log")
}
