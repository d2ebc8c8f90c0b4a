package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, maxSize int64, putter BatchPutter) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	p := NewProcessor(Config{Logger: zerolog.Nop(), MaxSize: maxSize, MaxAttempts: 2}, NewMetrics(reg))
	p.now = clock
	p.newPutter = func(_ context.Context, _ StreamTarget) (BatchPutter, error) { return putter, nil }

	srv := httptest.NewServer(NewRouter(p, reg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func postEvent(t *testing.T, url string, ev TransformationEvent) *http.Response {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	resp, err := http.Post(url+"/transform", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTransformEndpoint(t *testing.T) {
	srv := testServer(t, defaultMaxSize, nil)

	resp := postEvent(t, srv.URL, TransformationEvent{
		DeliveryStreamArn: testDeliveryStreamARN,
		Records: []InputRecord{
			inputRecord("ok", gzipBytes(t, exampleDataMessage)),
			inputRecord("ctl", gzipBytes(t, `{"messageType":"CONTROL_MESSAGE"}`)),
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw struct {
		Records []map[string]string `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Len(t, raw.Records, 2)

	assert.Equal(t, "ok", raw.Records[0]["recordId"])
	assert.Equal(t, "Ok", raw.Records[0]["result"])
	assert.Equal(t,
		b64([]byte(`{"event":{"id":"1","timestamp":1000,"message":"hello","owner":"acct","log_group":"lg","log_stream":"ls"}}`+"\n")),
		raw.Records[0]["data"])

	assert.Equal(t, "Dropped", raw.Records[1]["result"])
	assert.NotContains(t, raw.Records[1], "data")
}

func TestTransformEndpointRejectsMalformedBody(t *testing.T) {
	srv := testServer(t, defaultMaxSize, nil)

	resp, err := http.Post(srv.URL+"/transform", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransformEndpointDeliveryFailure(t *testing.T) {
	putter := new(MockBatchPutter)
	putter.On("PutBatch", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	srv := testServer(t, 1, putter)

	resp := postEvent(t, srv.URL, TransformationEvent{
		DeliveryStreamArn: testDeliveryStreamARN,
		Records:           dataRecords(t, 1),
	})

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	putter.AssertNumberOfCalls(t, "PutBatch", 2)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := testServer(t, defaultMaxSize, nil)
	postEvent(t, srv.URL, TransformationEvent{Records: dataRecords(t, 1)})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `firehose_processor_records_total{result="Ok"} 1`)
	assert.Contains(t, buf.String(), "firehose_processor_invocations_total 1")
}
