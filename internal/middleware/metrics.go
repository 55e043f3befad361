package middleware

import (
	"context"
	"time"

	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// Metrics records request counts, latency and in-flight requests. A handler
// error is counted as the 40 reply the server sends for it.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error) {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			res, err := next.Handle(ctx, req)

			status := protocol.StatusTemporaryFailure
			if err == nil && res != nil {
				status = res.Reply.Status
			}
			group := metrics.NormalizeStatus(status)
			m.RequestsTotal.WithLabelValues(group).Inc()
			m.RequestDuration.WithLabelValues(group).Observe(time.Since(start).Seconds())

			return res, err
		})
	}
}
