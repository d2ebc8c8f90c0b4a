package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maximum accepted invocation body; Firehose caps a Lambda invocation at 6MB of
// base64 data, leave room for the envelope
const maxRequestBody = 8 << 20

// NewRouter exposes the processor over HTTP so it can be driven without the Lambda
// runtime: POST /transform takes a transformation event and answers with the response
// Lambda would return.
func NewRouter(p *Processor, gatherer prometheus.Gatherer, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/transform", transformHandler(p, logger)).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func transformHandler(p *Processor, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev TransformationEvent
		body := http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(body).Decode(&ev); err != nil {
			logger.Warn().Err(err).Msg("Rejected malformed transformation event")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		resp, err := p.Handle(r.Context(), ev)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrDeliveryExhausted) {
				status = http.StatusBadGateway
			}
			logger.Error().Err(err).Msg("Transformation invocation failed")
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
