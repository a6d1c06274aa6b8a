package server

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/troian/healthcheck"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VolantMQ/vlnats/clients"
	"github.com/VolantMQ/vlnats/configuration"
	"github.com/VolantMQ/vlnats/keystore"
	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	"github.com/VolantMQ/vlnats/topics"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
	"github.com/VolantMQ/vlnats/transport"
)

const (
	// DefaultMaxIncoming sessions served concurrently when acceptor is not configured
	DefaultMaxIncoming = 10000

	// ProtoVersion advertised in INFO. 1 means client understands dynamic INFO updates
	ProtoVersion = 1
)

// ErrInvalidArgs server configuration is not consistent
var ErrInvalidArgs = errors.New("server: invalid arguments")

// Config configuration of the NATS server
type Config struct {
	Nats      configuration.NatsConfig
	Acceptor  configuration.AcceptorConfig
	Listeners configuration.ListenersConfig
	Stats     configuration.StatsConfig

	// Keystore source of server identity. Ephemeral key is generated if not set
	Keystore keystore.Keystore

	// Health receives readiness and liveness checks of every listener. Optional
	Health healthcheck.Checks

	// Metrics is allocated by server if not set
	Metrics metrics.IFace
	Clock   clockwork.Clock
	Version string
}

// Handle of running server. Done channel is closed once the server has stopped
type Handle struct {
	Config
	log         *zap.SugaredLogger
	info        packet.ServerInfo
	topicsMgr   topicsTypes.Provider
	sessionsMgr *clients.Manager
	transports  []transport.Provider
	health      []string
	quit        chan struct{}
	done        chan struct{}
	onStop      sync.Once
	err         error
}

// Start configures server, binds listeners and starts serving.
// Listener bind failure is returned to the caller.
// Cancellation of ctx shuts server down
func Start(ctx context.Context, c Config) (*Handle, error) {
	if ctx == nil {
		return nil, ErrInvalidArgs
	}

	h := &Handle{
		Config: c,
		log:    configuration.GetLogger().Named("server"),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	h.defaults()

	key, err := h.Keystore.Load()
	if err != nil {
		return nil, errors.Wrap(err, "server: load key")
	}

	serverID, err := keystore.ServerID(key)
	if err != nil {
		return nil, err
	}

	if h.Metrics == nil {
		if h.Metrics, err = metrics.New(metrics.Config{
			Interval: h.Stats.Interval,
			Log:      configuration.GetLogger().Named("metrics"),
		}); err != nil {
			return nil, err
		}
	}

	// everything allocated below is released by the cleanup on failure
	cleanup := []func() error{h.Metrics.Shutdown}
	fail := func(e error) (*Handle, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}

		return nil, e
	}

	if h.Stats.Interval > 0 {
		if err = h.Metrics.Register("log", metrics.NewLogReporter(configuration.GetLogger().Named("stats"))); err != nil {
			return fail(err)
		}
	}

	topicsConfig := topicsTypes.NewMemConfig()
	topicsConfig.NoResponders = h.Nats.NoResponders
	topicsConfig.Metrics = h.Metrics
	topicsConfig.Log = configuration.GetLogger().Named("topics")

	if h.topicsMgr, err = topics.New(topicsConfig); err != nil {
		return fail(err)
	}

	cleanup = append(cleanup, h.topicsMgr.Shutdown)

	// sessions manager needs bound port in the server info,
	// so listeners are created first and forward connections once serving
	internal := &transport.InternalConfig{
		Handler: transport.HandlerFunc(h.onConnection),
		Metrics: h.Metrics,
		IDs:     atomic.NewUint64(0),
	}

	tcp, err := transport.NewTCP(transport.NewConfigTCP(&transport.Config{
		Host: h.Listeners.Host,
		Port: h.Listeners.TCP.Port,
	}), internal)
	if err != nil {
		return fail(errors.Wrap(err, "server: tcp listener"))
	}

	h.transports = append(h.transports, tcp)
	cleanup = append(cleanup, tcp.Close)

	if h.Listeners.WS.Port > 0 {
		wsConfig := transport.NewConfigWS(&transport.Config{
			Host: h.Listeners.Host,
			Port: h.Listeners.WS.Port,
		})

		if h.Listeners.WS.Path != "" {
			wsConfig.Path = h.Listeners.WS.Path
		}

		ws, e := transport.NewWS(wsConfig, internal)
		if e != nil {
			return fail(errors.Wrap(e, "server: websocket listener"))
		}

		h.transports = append(h.transports, ws)
		cleanup = append(cleanup, ws.Close)
	}

	h.info = packet.ServerInfo{
		ServerID:   serverID,
		ServerName: h.Nats.ServerName,
		Version:    h.Version,
		GoVersion:  runtime.Version(),
		Host:       h.Listeners.Host,
		Port:       tcp.Port(),
		Headers:    true,
		MaxPayload: h.Nats.MaxPayload,
		Proto:      ProtoVersion,
		Cluster:    h.Nats.ClusterName,
	}

	if h.sessionsMgr, err = clients.NewManager(&clients.Config{
		TopicsMgr:          h.topicsMgr,
		Metrics:            h.Metrics,
		Clock:              h.Clock,
		ServerInfo:         h.info,
		MaxIncoming:        h.Acceptor.MaxIncoming,
		PreSpawn:           h.Acceptor.PreSpawn,
		MaxPayload:         h.Nats.MaxPayload,
		MaxControlLine:     h.Nats.MaxControlLine,
		MaxPending:         h.Nats.MaxPending,
		Heartbeat:          h.Nats.Heartbeat,
		WriteDeadline:      h.Nats.WriteDeadline,
		FlushTimeout:       h.Nats.FlushTimeout,
		CloseSlowConsumers: h.Nats.CloseSlowConsumers,
	}); err != nil {
		return fail(err)
	}

	group, groupCtx := errgroup.WithContext(context.Background())

	for _, l := range h.transports {
		l := l

		h.registerHealth(l)

		group.Go(func() error {
			h.log.Infow("Listener started", "protocol", l.Protocol(), "port", l.Port())

			if e := l.Serve(); e != nil {
				return errors.Wrapf(e, "server: %s listener", l.Protocol())
			}

			h.log.Infow("Listener stopped", "protocol", l.Protocol(), "port", l.Port())

			return nil
		})
	}

	go h.supervise(ctx, group, groupCtx)

	h.log.Infow("Server started",
		"server_id", h.info.ServerID,
		"server_name", h.info.ServerName,
		"url", h.ClientURL())

	return h, nil
}

// Done is closed when server has stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until server has stopped and returns shutdown error if any
func (h *Handle) Wait() error {
	<-h.done

	return h.err
}

// Shutdown server and wait it to complete.
// Safe to call multiple times, every call returns same result
func (h *Handle) Shutdown() error {
	h.onStop.Do(func() {
		close(h.quit)
	})

	return h.Wait()
}

// ServerInfo template sent to clients
func (h *Handle) ServerInfo() packet.ServerInfo {
	return h.info.ForClient(0, "")
}

// ClientURL of tcp listener
func (h *Handle) ClientURL() string {
	return "nats://" + net.JoinHostPort(dialHost(h.Listeners.Host), strconv.Itoa(h.info.Port))
}

// Clients count of active sessions
func (h *Handle) Clients() int {
	return h.sessionsMgr.Count()
}

// Subscriptions count of active subscriptions
func (h *Handle) Subscriptions() int {
	return h.topicsMgr.Count()
}

func (h *Handle) defaults() {
	if h.Keystore == nil {
		h.Keystore = &keystore.Ephemeral{}
	}

	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}

	if h.Acceptor.MaxIncoming <= 0 {
		h.Acceptor.MaxIncoming = DefaultMaxIncoming
	}

	if h.Nats.MaxPayload <= 0 {
		h.Nats.MaxPayload = packet.DefaultMaxPayload
	}

	if h.Nats.MaxControlLine <= 0 {
		h.Nats.MaxControlLine = packet.DefaultMaxControlLine
	}

	if h.Listeners.Host == "" {
		h.Listeners.Host = "0.0.0.0"
	}

	if h.Version == "" {
		h.Version = "UNKNOWN"
	}
}

func (h *Handle) onConnection(conn transport.Conn) error {
	return h.sessionsMgr.OnConnection(conn)
}

func (h *Handle) registerHealth(l transport.Provider) {
	if h.Health == nil {
		return
	}

	name := "listener:" + l.Protocol() + ":" + strconv.Itoa(l.Port())
	addr := net.JoinHostPort(dialHost(h.Listeners.Host), strconv.Itoa(l.Port()))

	_ = h.Health.AddReadinessCheck(name, func() error {
		if e := l.Ready(); e != nil {
			return e
		}

		return healthcheck.TCPDialCheck(addr, 1*time.Second)()
	})

	_ = h.Health.AddLivenessCheck(name, func() error {
		if e := l.Alive(); e != nil {
			return e
		}

		return healthcheck.TCPDialCheck(addr, 1*time.Second)()
	})

	h.health = append(h.health, name)
}

// supervise waits for stop request, context cancellation or listener failure and
// runs shutdown sequence: listeners, sessions, router, metrics
func (h *Handle) supervise(ctx context.Context, group *errgroup.Group, groupCtx context.Context) {
	defer close(h.done)

	select {
	case <-h.quit:
		h.log.Info("Shutdown requested")
	case <-ctx.Done():
		h.log.Info("Context done, shutting down")
	case <-groupCtx.Done():
		h.log.Error("Listener failed, shutting down")
	}

	var result *multierror.Error

	for _, l := range h.transports {
		if err := l.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "server: close %s listener", l.Protocol()))
		}
	}

	if err := group.Wait(); err != nil {
		result = multierror.Append(result, err)
	}

	if h.Health != nil {
		for _, name := range h.health {
			_ = h.Health.RemoveReadinessCheck(name)
			_ = h.Health.RemoveLivenessCheck(name)
		}
	}

	if err := h.sessionsMgr.Shutdown(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := h.topicsMgr.Shutdown(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := h.Metrics.Shutdown(); err != nil {
		result = multierror.Append(result, err)
	}

	h.err = result.ErrorOrNil()

	if h.err != nil {
		h.log.Errorw("Server stopped", "error", h.err)
	} else {
		h.log.Info("Server stopped")
	}
}

// dialHost address clients use to reach listener bound to host
func dialHost(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return "127.0.0.1"
	}

	if host == "" {
		return "127.0.0.1"
	}

	return host
}
