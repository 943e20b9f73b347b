package mqtt

import (
	"context"
	"fmt"
)

// Subscribe asks the broker for messages matching filter at up to qos.
//
// Filters can include MQTT wildcards:
//   - + (single-level): "sensors/+/temperature"
//   - # (multi-level, last level only): "rye/#"
//
// Matching messages are handed to the SetOnMessage receiver. No per-filter
// route is registered with paho; every message goes through the default
// publish handler so overlapping filters still deliver it once. The call
// blocks until the broker acknowledges the subscription, ctx is done or
// the subscribe timeout elapses. A SUBACK that rejects the filter is
// reported as ErrSubscribeFailed.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	token := c.client.Subscribe(filter, qos, nil)
	if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	if st, ok := token.(interface{ Result() map[string]byte }); ok {
		if code, found := st.Result()[filter]; found && code == subackFailure {
			return fmt.Errorf("%w: %s: rejected by broker", ErrSubscribeFailed, filter)
		}
	}

	return nil
}

// Unsubscribe removes one or more filters from the broker session.
//
// Messages already in flight may still be delivered afterwards. ctx bounds
// the wait for the broker's acknowledgement.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return ErrInvalidTopic
	}
	for _, f := range filters {
		if f == "" {
			return ErrInvalidTopic
		}
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	token := c.client.Unsubscribe(filters...)
	if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}
