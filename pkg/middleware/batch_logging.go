package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxCapturedBody bounds how much of a response BatchResponseLogger keeps.
const maxCapturedBody = 64 << 10

// BatchResponseLogger returns middleware for the query endpoint that logs
// the reason of rejected batches. The request body is never logged; it
// holds the script and may carry data.
// Pass nil logger to disable logging.
func BatchResponseLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &bodyRecorder{
				responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK},
				body:           &bytes.Buffer{},
			}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.Int64("request_bytes", r.ContentLength),
				zap.Int("response_bytes", recorder.size),
				zap.Duration("duration", time.Since(start)),
			}
			if id := GetRequestID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			if recorder.statusCode < http.StatusBadRequest {
				logger.Debug("Batch response", fields...)
				return
			}

			var envelope batchErrorEnvelope
			if err := json.Unmarshal(recorder.body.Bytes(), &envelope); err != nil || envelope.Error == nil {
				logger.Warn("Batch rejected", append(fields, zap.Int("status", recorder.statusCode))...)
				return
			}
			logger.Warn("Batch rejected", append(fields,
				zap.Int("status", recorder.statusCode),
				zap.String("error_message", envelope.Error.Message),
				zap.String("error_code", envelope.Error.Extensions.Code),
			)...)
		})
	}
}

// batchErrorEnvelope mirrors the error body written by the query handler.
type batchErrorEnvelope struct {
	Error *struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"error"`
}

// bodyRecorder captures the start of the response body. Success bodies are
// only counted.
type bodyRecorder struct {
	responseWriter
	body *bytes.Buffer
	size int
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	n, err := r.responseWriter.Write(b)
	r.size += n
	if r.statusCode >= http.StatusBadRequest && r.body.Len() < maxCapturedBody {
		r.body.Write(b[:min(len(b), maxCapturedBody-r.body.Len())])
	}
	return n, err
}
