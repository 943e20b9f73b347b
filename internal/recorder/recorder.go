package recorder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/mqttlog/internal/api"
	"github.com/nerrad567/mqttlog/internal/dispatch"
	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
	"github.com/nerrad567/mqttlog/internal/infrastructure/database"
	"github.com/nerrad567/mqttlog/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttlog/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/journal"
	"github.com/nerrad567/mqttlog/internal/sink"
	"github.com/nerrad567/mqttlog/internal/subscription"
	"github.com/nerrad567/mqttlog/migrations"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithMQTTOptions passes options through to the transport, typically a
// fake client factory in tests.
func WithMQTTOptions(opts ...mqtt.Option) Option {
	return func(r *Recorder) {
		r.mqttOpts = append(r.mqttOpts, opts...)
	}
}

// WithSinkOptions passes options through to the sink.
func WithSinkOptions(opts ...sink.Option) Option {
	return func(r *Recorder) {
		r.sinkOpts = append(r.sinkOpts, opts...)
	}
}

// Recorder is the lifecycle controller for one broker connection and one
// log file.
type Recorder struct {
	cfg     *config.Config
	log     *logging.Logger
	version string

	mqttOpts []mqtt.Option
	sinkOpts []sink.Option

	client     *mqtt.Client
	registry   *subscription.Registry
	dispatcher *dispatch.Dispatcher
	sink       *sink.Sink

	// Side channels, nil when disabled or failed to start.
	db      *database.DB
	journal journal.Repository
	influx  *influxdb.Client
	hub     *api.Hub
	server  *api.Server

	// failures counts consecutive write errors. Only the dispatch loop
	// touches it.
	failures int

	started  atomic.Bool
	ready    chan struct{}
	cancelMu sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
}

// New builds a recorder from cfg. Nothing is opened or connected until Run.
func New(cfg *config.Config, log *logging.Logger, version string, opts ...Option) (*Recorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(cfg.Subscriptions) == 0 {
		return nil, ErrNoSubscriptions
	}
	if log == nil {
		log = logging.Discard()
	}

	r := &Recorder{
		cfg:     cfg,
		log:     log,
		version: version,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.sink = sink.New(cfg.Sink, r.sinkOpts...)

	r.client = mqtt.New(cfg.MQTT, r.mqttOpts...)
	r.client.SetLogger(log.With("component", "mqtt"))

	r.registry = subscription.NewRegistry(r.client)
	r.registry.SetLogger(log.With("component", "subscription"))

	r.dispatcher = dispatch.New(r.handle, cfg.Dispatch.QueueSize)
	r.dispatcher.SetLogger(log.With("component", "dispatch"))

	return r, nil
}

// Run starts the pipeline and blocks until ctx is cancelled or Stop is
// called, then shuts down in order. Only a failure to open the log file,
// register the configured filters or establish the first broker session
// is returned as an error.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.setCancel(cancel) {
		return nil
	}

	if r.cfg.Sink.CreateOnStart {
		if err := r.sink.Open(); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		r.log.Info("log file open", "path", r.sink.Path())
	}
	defer r.closeSink()

	for _, s := range r.cfg.Subscriptions {
		if err := r.registry.Subscribe(ctx, s.Filter, byte(s.QoS)); err != nil {
			return fmt.Errorf("registering subscription: %w", err)
		}
	}

	r.openSideChannels(ctx)
	defer r.closeSideChannels()

	r.wireTransport(ctx)

	g, gctx := errgroup.WithContext(ctx)

	// The loop is stopped explicitly so it can drain after ctx is gone.
	g.Go(func() error {
		return r.dispatcher.Run(context.WithoutCancel(gctx))
	})
	if r.hub != nil {
		g.Go(func() error {
			r.hub.Run(gctx)
			return nil
		})
	}

	if err := r.client.Connect(ctx); err != nil {
		interrupted := ctx.Err() != nil
		r.dispatcher.Stop()
		cancel()
		_ = g.Wait() //nolint:errcheck // connect error takes precedence
		if interrupted {
			r.log.Info("shutdown requested before the broker session was established")
			return nil
		}
		return fmt.Errorf("connecting to broker: %w", err)
	}
	close(r.ready)

	r.log.Info("recorder running",
		"broker", r.client.BrokerAddress(),
		"client_id", r.client.ClientID(),
		"subscriptions", r.registry.Len(),
		"log_file", r.sink.Path(),
	)

	g.Go(func() error {
		<-gctx.Done()
		r.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown stops the loop, waits for the queue to drain, then leaves the
// broker. Messages arriving during the drain are dropped.
func (r *Recorder) shutdown() {
	r.log.Info("shutting down", "pending", r.dispatcher.Stats().Pending)

	r.dispatcher.Stop()
	<-r.dispatcher.Done()

	if err := r.client.Disconnect(); err != nil {
		r.log.Warn("disconnect failed", "error", err)
	}

	stats := r.dispatcher.Stats()
	r.log.Info("dispatch loop stopped",
		"handled", stats.Handled,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)
}

// Stop asks Run to shut down. It is idempotent, safe from a signal handler
// and does not wait; an Append already in progress always completes.
func (r *Recorder) Stop() {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
}

// setCancel records Run's cancel func. It reports false when Stop was
// called before Run.
func (r *Recorder) setCancel(cancel context.CancelFunc) bool {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	if r.stopped {
		return false
	}
	r.cancel = cancel
	return true
}

// Reopen reopens the log file, for use after external rotation.
func (r *Recorder) Reopen() error {
	if err := r.sink.Reopen(); err != nil {
		r.log.Error("reopening log file failed", "path", r.sink.Path(), "error", err)
		return err
	}
	r.log.Info("log file reopened", "path", r.sink.Path())
	return nil
}

// Ready is closed once the first broker session is established.
func (r *Recorder) Ready() <-chan struct{} {
	return r.ready
}

// Subscribe adds a filter at runtime.
func (r *Recorder) Subscribe(ctx context.Context, filter string, qos byte) error {
	return r.registry.Subscribe(ctx, filter, qos)
}

// Unsubscribe removes a filter at runtime.
func (r *Recorder) Unsubscribe(ctx context.Context, filter string) error {
	return r.registry.Unsubscribe(ctx, filter)
}

// Client returns the transport.
func (r *Recorder) Client() *mqtt.Client { return r.client }

// Registry returns the subscription registry.
func (r *Recorder) Registry() *subscription.Registry { return r.registry }

// Dispatcher returns the dispatch loop.
func (r *Recorder) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// Sink returns the log file sink.
func (r *Recorder) Sink() *sink.Sink { return r.sink }

// APIAddr returns the status API address, or "" when it is not serving.
func (r *Recorder) APIAddr() string {
	if r.server == nil {
		return ""
	}
	return r.server.Addr()
}

// wireTransport connects transport events to the registry and the loop.
// Restores stop issuing once ctx is done.
func (r *Recorder) wireTransport(ctx context.Context) {
	r.client.SetOnConnect(func() {
		// Failures stay registered for the next session.
		_ = r.registry.Restore(ctx) //nolint:errcheck // logged by the registry
		r.broadcastSession(nil)
	})
	r.client.SetOnDisconnect(func(err error) {
		r.registry.HandleConnectionLost()
		r.log.Warn("broker connection lost, reconnecting", "error", err)
		r.broadcastSession(err)
	})
	r.client.SetOnMessage(r.dispatcher.Receive)
}

// openSideChannels starts every enabled side channel. A side channel that
// fails to start is logged and left disabled; the log file is the only
// required output.
func (r *Recorder) openSideChannels(ctx context.Context) {
	if r.cfg.Journal.Enabled {
		if err := r.openJournal(ctx); err != nil {
			r.log.Warn("journal disabled", "path", r.cfg.Journal.Path, "error", err)
		}
	}

	if r.cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(r.cfg.InfluxDB)
		if err != nil {
			r.log.Warn("InfluxDB disabled", "url", r.cfg.InfluxDB.URL, "error", err)
		} else {
			client.SetOnError(func(err error) {
				r.log.Error("InfluxDB write error", "error", err)
			})
			r.influx = client
			r.log.Info("InfluxDB connected",
				"url", r.cfg.InfluxDB.URL,
				"org", r.cfg.InfluxDB.Org,
				"bucket", r.cfg.InfluxDB.Bucket,
			)
		}
	}

	if r.cfg.API.Enabled {
		if err := r.startAPI(ctx); err != nil {
			r.log.Warn("status API disabled", "error", err)
		}
	}
}

func (r *Recorder) openJournal(ctx context.Context) error {
	db, err := database.Open(database.Config{
		Path:        r.cfg.Journal.Path,
		WALMode:     r.cfg.Journal.WALMode,
		BusyTimeout: r.cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return err
	}
	r.db = db
	r.journal = journal.NewSQLiteRepository(db.DB)
	r.log.Info("journal open", "path", db.Path())
	return nil
}

func (r *Recorder) startAPI(ctx context.Context) error {
	hub := api.NewHub(r.cfg.WebSocket, r.log.With("component", "websocket"))

	deps := api.Deps{
		Config:        r.cfg.API,
		WS:            r.cfg.WebSocket,
		Logger:        r.log.With("component", "api"),
		Version:       r.version,
		Session:       r.client,
		Subscriptions: r.registry,
		Dispatcher:    r.dispatcher,
		Sink:          r.sink,
		Checks:        map[string]api.HealthChecker{"mqtt": r.client},
		Hub:           hub,
	}
	if r.journal != nil {
		deps.Journal = r.journal
		deps.Checks["journal"] = r.db
	}
	if r.influx != nil {
		deps.Checks["influxdb"] = r.influx
	}

	server, err := api.New(deps)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	r.hub = hub
	r.server = server
	return nil
}

// closeSideChannels runs after the loop has drained.
func (r *Recorder) closeSideChannels() {
	if r.server != nil {
		if err := r.server.Close(); err != nil {
			r.log.Error("error closing status API", "error", err)
		}
	}
	if r.influx != nil {
		r.log.Info("closing InfluxDB connection")
		if err := r.influx.Close(); err != nil {
			r.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if r.db != nil {
		r.log.Info("closing journal")
		if err := r.db.Close(); err != nil {
			r.log.Error("error closing journal", "error", err)
		}
	}
}

func (r *Recorder) closeSink() {
	stats := r.sink.Stats()
	if err := r.sink.Close(); err != nil {
		r.log.Error("error closing log file", "path", stats.Path, "error", err)
		return
	}
	r.log.Info("log file closed",
		"path", stats.Path,
		"appended", stats.Appended,
		"failed", stats.Failed,
	)
}

// sessionEvent is the feed payload for connection changes.
type sessionEvent struct {
	State string    `json:"state"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

func (r *Recorder) broadcastSession(err error) {
	if r.hub == nil {
		return
	}
	ev := sessionEvent{State: r.client.State().String(), Time: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	r.hub.Broadcast(api.EventSession, ev)
}
