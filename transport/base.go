package transport

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
)

var (
	// ErrNotServing listener is not bound or already closed
	ErrNotServing = errors.New("transport: listener is not serving")

	// ErrInvalidArgs invalid listener configuration
	ErrInvalidArgs = errors.New("transport: invalid arguments")
)

// Config is base configuration object used by all transports
type Config struct {
	// Host address to bind to, empty means all interfaces
	Host string

	// Port to listen on. Zero lets system pick one
	Port int
}

// InternalConfig used by server implementation to configure internal specific needs
type InternalConfig struct {
	Handler Handler
	Metrics metrics.Informer

	// IDs process-wide client id counter shared by all listeners
	IDs *atomic.Uint64
}

type baseConfig struct {
	InternalConfig
	config       Config
	onConnection sync.WaitGroup
	onceStop     sync.Once
	quit         chan struct{}
	log          *zap.SugaredLogger
	protocol     string
	port         int
}

// Provider is interface that all of transports must implement
type Provider interface {
	Protocol() string
	Serve() error
	Close() error
	Port() int
	Ready() error
	Alive() error
}

func (c *baseConfig) init(internal *InternalConfig, config *Config) error {
	if internal == nil || internal.Handler == nil || config == nil {
		return ErrInvalidArgs
	}

	c.quit = make(chan struct{})
	c.InternalConfig = *internal
	c.config = *config

	if c.Metrics == nil {
		c.Metrics = metrics.Discard()
	}

	if c.IDs == nil {
		c.IDs = atomic.NewUint64(0)
	}

	return nil
}

func (c *baseConfig) address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Port return tcp port used by transport
func (c *baseConfig) Port() int {
	return c.port
}

// Protocol return protocol name used by transport
func (c *baseConfig) Protocol() string {
	return c.protocol
}

func (c *baseConfig) isDone() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// handleConnection assigns client id and hands connection off to the handler
func (c *baseConfig) handleConnection(cn net.Conn, wrap func(net.Conn, uint64) Conn) {
	if c.isDone() {
		_ = cn.Close()
		return
	}

	id := c.IDs.Inc()
	conn := wrap(cn, id)

	if err := c.Handler.OnConnection(conn); err != nil {
		c.log.Errorw("Couldn't start session",
			"client_id", id,
			"remote", cn.RemoteAddr().String(),
			"error", err)

		c.Metrics.Clients().OnRejected()

		_ = conn.Close()
	}
}
