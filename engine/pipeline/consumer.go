package pipeline

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/pkg/natsutil"
)

// Batch is the wire format the transport adapter publishes on the intake
// subject: one message per scheduler tick.
type Batch struct {
	Posts []domain.RawPost `json:"posts"`
}

// StartConsumer subscribes to the intake subject and forwards each batch
// to handle. Passes run sequentially on the NATS callback goroutine; the
// store assumes a single writer.
func StartConsumer(nc *nats.Conn, subject string, handle func(context.Context, []domain.RawPost)) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, subject, func(ctx context.Context, b Batch) {
		handle(ctx, b.Posts)
	})
}

// PublishResult pushes the pass counters to the result subject for the
// dashboard.
func PublishResult(ctx context.Context, nc *nats.Conn, subject string, res domain.PipelineResult) error {
	return natsutil.Publish(ctx, nc, subject, res)
}
