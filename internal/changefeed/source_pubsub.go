package changefeed

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// PubSubSource receives from this instance's subscription on the order
// change topic. Each API instance needs its own subscription.
type PubSubSource struct {
	subscription *pubsub.Subscriber
}

func NewPubSubSource(subscription *pubsub.Subscriber) (*PubSubSource, error) {
	if subscription == nil {
		return nil, fmt.Errorf("pubsub subscription required for the change feed")
	}
	return &PubSubSource{subscription: subscription}, nil
}

func (s *PubSubSource) Name() string { return "pubsub" }

// Run acks every message; a malformed envelope is never worth redelivering.
func (s *PubSubSource) Run(ctx context.Context, sink Sink) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		sink.Deliver(msg.Data)
		msg.Ack()
	})
}
