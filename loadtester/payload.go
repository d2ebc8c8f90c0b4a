package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/xid"
)

type PayloadKind string

const (
	KindData      PayloadKind = "data"
	KindControl   PayloadKind = "control"
	KindContainer PayloadKind = "container"
	KindPlaintext PayloadKind = "plaintext"
)

var payloadKinds = []PayloadKind{KindData, KindControl, KindContainer, KindPlaintext}

// Mix holds the relative weight of each payload kind.
type Mix map[PayloadKind]int

var defaultMix = Mix{KindData: 80, KindControl: 5, KindContainer: 10, KindPlaintext: 5}

// parseMix reads "data=80,control=5,container=10,plaintext=5". Kinds left out weigh 0.
func parseMix(raw string) (Mix, error) {
	mix := Mix{}
	total := 0
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, weight, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mix entry %q", part)
		}
		kind := PayloadKind(strings.TrimSpace(name))
		if !kind.valid() {
			return nil, fmt.Errorf("unknown payload kind %q", name)
		}
		var w int
		if _, err := fmt.Sscanf(strings.TrimSpace(weight), "%d", &w); err != nil || w < 0 {
			return nil, fmt.Errorf("invalid weight for %s: %q", kind, weight)
		}
		mix[kind] = w
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("mix %q has no weight", raw)
	}
	return mix, nil
}

func (k PayloadKind) valid() bool {
	for _, kind := range payloadKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (m Mix) pick(rng *rand.Rand) PayloadKind {
	total := 0
	for _, kind := range payloadKinds {
		total += m[kind]
	}
	n := rng.Intn(total)
	for _, kind := range payloadKinds {
		if n < m[kind] {
			return kind
		}
		n -= m[kind]
	}
	return KindData
}

type subscriptionMessage struct {
	MessageType         string     `json:"messageType"`
	Owner               string     `json:"owner"`
	LogGroup            string     `json:"logGroup"`
	LogStream           string     `json:"logStream"`
	SubscriptionFilters []string   `json:"subscriptionFilters"`
	LogEvents           []logEvent `json:"logEvents"`
}

type logEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Generator builds record payloads shaped like what a CloudWatch Logs subscription,
// a container log forwarder or a plain agent would put on a delivery stream.
type Generator struct {
	Owner    string
	LogGroup string
	now      func() time.Time
}

func NewGenerator(owner, logGroup string) *Generator {
	return &Generator{Owner: owner, LogGroup: logGroup, now: time.Now}
}

// Payload returns the raw record bytes. events sets how many log events a data message
// carries.
func (g *Generator) Payload(kind PayloadKind, events int) ([]byte, error) {
	switch kind {
	case KindControl:
		return gzipJSON(subscriptionMessage{
			MessageType: "CONTROL_MESSAGE",
			Owner:       "CloudwatchLogs",
			LogGroup:    "",
			LogStream:   "",
			LogEvents: []logEvent{{
				ID:        xid.New().String(),
				Timestamp: g.now().UnixMilli(),
				Message:   "CWL CONTROL MESSAGE: Checking health of destination Firehose.",
			}},
		})
	case KindContainer:
		inner, err := json.Marshal(map[string]any{
			"level":   gofakeit.LogLevel("general"),
			"msg":     gofakeit.HackerPhrase(),
			"user":    gofakeit.Username(),
			"client":  gofakeit.IPv4Address(),
			"request": xid.New().String(),
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"container_id":   strings.ReplaceAll(gofakeit.UUID(), "-", ""),
			"container_name": "/" + gofakeit.AppName(),
			"source":         "stdout",
			"log":            string(inner),
		})
	case KindPlaintext:
		return []byte(accessLine()), nil
	default:
		msg := subscriptionMessage{
			MessageType:         "DATA_MESSAGE",
			Owner:               g.Owner,
			LogGroup:            g.LogGroup,
			LogStream:           fmt.Sprintf("%s/%s", gofakeit.DomainName(), xid.New().String()),
			SubscriptionFilters: []string{"loadtest"},
		}
		ts := g.now().UnixMilli()
		for i := 0; i < max(events, 1); i++ {
			msg.LogEvents = append(msg.LogEvents, logEvent{
				ID:        xid.New().String(),
				Timestamp: ts + int64(i),
				Message:   accessLine(),
			})
		}
		return gzipJSON(msg)
	}
}

func accessLine() string {
	return fmt.Sprintf("%s - %s [%s] \"%s %s HTTP/1.1\" %d %d \"%s\"",
		gofakeit.IPv4Address(),
		gofakeit.Username(),
		time.Now().UTC().Format("02/Jan/2006:15:04:05 -0700"),
		gofakeit.HTTPMethod(),
		gofakeit.URL(),
		gofakeit.HTTPStatusCode(),
		gofakeit.Number(128, 65536),
		gofakeit.UserAgent(),
	)
}

func gzipJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
