package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zoff-tech/order-event-hub/pkg/telemetry"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, telemetry.OutcomeSuccess, outcome(nil))
	assert.Equal(t, telemetry.OutcomeRejected, outcome(fmt.Errorf("%w: enqueue refused", ErrRejected)))
	assert.Equal(t, telemetry.OutcomeConnectError, outcome(fmt.Errorf("%w: dial: refused", ErrConnect)))
	assert.Equal(t, telemetry.OutcomeConnectError, outcome(fmt.Errorf("something else")))
}

func TestWithMetrics_PassesThrough(t *testing.T) {
	next := &flakyPublisher{failures: 1, err: fmt.Errorf("%w: dial: refused", ErrConnect)}
	pub := WithMetrics(next)

	err := pub.Publish(context.Background(), "payment.completed", map[string]any{"n": 1})
	assert.ErrorIs(t, err, ErrConnect)

	err = pub.Publish(context.Background(), "payment.completed", map[string]any{"n": 2})
	assert.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	assert.NoError(t, pub.Close())
}
