package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
)

// maxQoS is the highest MQTT QoS level.
const maxQoS = 2

// Transport is the part of the MQTT connection the registry drives.
// *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, filter string, qos byte) error
	Unsubscribe(ctx context.Context, filters ...string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscription is one registered filter.
type Subscription struct {
	Filter string `json:"filter"`
	QoS    byte   `json:"qos"`

	// Active is true once the broker acknowledged the filter in the
	// current session.
	Active bool `json:"active"`

	// LastError is the most recent subscribe failure, cleared on success.
	LastError string `json:"last_error,omitempty"`
}

// Registry is the authoritative set of desired subscriptions.
//
// Filters are unique; subscribing an existing filter again updates its QoS.
// All public methods are thread-safe. Broker calls are serialised so a
// Restore racing a Subscribe never issues the same filter twice in one
// session.
type Registry struct {
	transport Transport
	logger    Logger

	subs map[string]*Subscription
	mu   sync.RWMutex // protects subs

	issueMu sync.Mutex // serialises broker round-trips
}

// NewRegistry creates an empty registry driving transport.
func NewRegistry(transport Transport) *Registry {
	return &Registry{
		transport: transport,
		logger:    noopLogger{},
		subs:      make(map[string]*Subscription),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe adds filter to the set (or updates its QoS) and, when the
// transport is connected, asks the broker for it.
//
// A filter that fails at the broker stays registered and is retried on the
// next reconnect. When the transport is not connected the filter is only
// registered; Restore issues it once the session is up.
func (r *Registry) Subscribe(ctx context.Context, filter string, qos byte) error {
	if err := validate(filter, qos); err != nil {
		return err
	}

	r.issueMu.Lock()
	defer r.issueMu.Unlock()

	r.mu.Lock()
	sub, exists := r.subs[filter]
	if exists && sub.QoS == qos && sub.Active {
		r.mu.Unlock()
		return nil
	}
	if !exists {
		sub = &Subscription{Filter: filter}
		r.subs[filter] = sub
	}
	sub.QoS = qos
	sub.Active = false
	r.mu.Unlock()

	if !r.transport.IsConnected() {
		r.logger.Info("subscription registered, waiting for connection", "filter", filter, "qos", qos)
		return nil
	}

	return r.issue(ctx, filter, qos)
}

// Unsubscribe removes filter from the set and from the broker session.
// The filter is removed from the set even if the broker call fails.
func (r *Registry) Unsubscribe(ctx context.Context, filter string) error {
	r.issueMu.Lock()
	defer r.issueMu.Unlock()

	r.mu.Lock()
	sub, exists := r.subs[filter]
	if exists {
		delete(r.subs, filter)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrNotRegistered, filter)
	}
	if !sub.Active || !r.transport.IsConnected() {
		return nil
	}

	if err := r.transport.Unsubscribe(ctx, filter); err != nil {
		r.logger.Warn("unsubscribe failed", "filter", filter, "error", err)
		return err
	}
	r.logger.Info("unsubscribed", "filter", filter)
	return nil
}

// Restore re-issues every registered filter. It is called on each
// connection-established event. Failures are logged and joined into the
// returned error; the filters stay registered for the next attempt. Once
// ctx is done no further filters are issued, so a restore racing shutdown
// does not hold the broker lock.
func (r *Registry) Restore(ctx context.Context) error {
	r.issueMu.Lock()
	defer r.issueMu.Unlock()

	r.mu.Lock()
	pending := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		sub.Active = false
		pending = append(pending, *sub)
	}
	r.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Filter < pending[j].Filter })

	var errs []error
	for i, sub := range pending {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("subscription restore abandoned",
				"restored", i-len(errs),
				"skipped", len(pending)-i,
				"error", err,
			)
			return errors.Join(append(errs, err)...)
		}
		if err := r.issue(ctx, sub.Filter, sub.QoS); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		r.logger.Warn("subscriptions restored with failures",
			"registered", len(pending),
			"failed", len(errs),
		)
	} else {
		r.logger.Info("subscriptions restored", "count", len(pending))
	}
	return errors.Join(errs...)
}

// HandleConnectionLost marks every filter inactive. The broker forgets a
// clean session's subscriptions when it drops.
func (r *Registry) HandleConnectionLost() {
	r.mu.Lock()
	for _, sub := range r.subs {
		sub.Active = false
	}
	r.mu.Unlock()
}

// issue performs one broker subscribe and records the outcome.
// Caller must hold issueMu.
func (r *Registry) issue(ctx context.Context, filter string, qos byte) error {
	err := r.transport.Subscribe(ctx, filter, qos)

	r.mu.Lock()
	if sub, ok := r.subs[filter]; ok {
		sub.Active = err == nil
		sub.LastError = ""
		if err != nil {
			sub.LastError = err.Error()
		}
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("subscribe failed, will retry on reconnect", "filter", filter, "qos", qos, "error", err)
		return err
	}
	r.logger.Info("subscribed", "filter", filter, "qos", qos)
	return nil
}

// Subscriptions returns a snapshot of the set, sorted by filter.
func (r *Registry) Subscriptions() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Filter < out[j].Filter })
	return out
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Match returns the registered filter that best matches topic. Fewer '#'
// levels win, then fewer '+' levels, then the longer filter; an exact
// filter therefore beats every wildcard and "rye/+" beats "rye/#".
func (r *Registry) Match(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	found := false
	for filter := range r.subs {
		if !mqtt.MatchFilter(filter, topic) {
			continue
		}
		if !found || moreSpecific(filter, best) {
			best = filter
			found = true
		}
	}
	return best, found
}

// moreSpecific reports whether a ranks above b. Ties on every criterion
// fall back to byte order so the choice never depends on map iteration.
func moreSpecific(a, b string) bool {
	if ha, hb := strings.Count(a, "#"), strings.Count(b, "#"); ha != hb {
		return ha < hb
	}
	if pa, pb := strings.Count(a, "+"), strings.Count(b, "+"); pa != pb {
		return pa < pb
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}

func validate(filter string, qos byte) error {
	if err := mqtt.ValidateFilter(filter); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	return nil
}
