package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/configuration"
)

// ConfigTCP configuration of tcp transport
type ConfigTCP struct {
	Scheme    string
	transport *Config
}

type tcp struct {
	baseConfig

	listener net.Listener
}

// NewConfigTCP allocate new transport config for tcp transport
// Use of this function is preferable instead of direct allocation of ConfigTCP
func NewConfigTCP(transport *Config) *ConfigTCP {
	return &ConfigTCP{
		Scheme:    "tcp",
		transport: transport,
	}
}

// NewTCP create new tcp transport and bind it.
// Bind failure is returned to the caller
func NewTCP(config *ConfigTCP, internal *InternalConfig) (Provider, error) {
	if config == nil {
		return nil, ErrInvalidArgs
	}

	l := &tcp{}

	if err := l.init(internal, config.transport); err != nil {
		return nil, err
	}

	ln, err := net.Listen(config.Scheme, l.address())
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", l.address())
	}

	l.protocol = "tcp"
	l.listener = ln
	l.port = ln.Addr().(*net.TCPAddr).Port

	l.log = configuration.GetLogger().Named("listener: " + l.protocol + "://" + ln.Addr().String())

	return l, nil
}

// Ready listener is bound and accepting
func (l *tcp) Ready() error {
	if l.isDone() {
		return ErrNotServing
	}

	return nil
}

// Alive ...
func (l *tcp) Alive() error {
	return l.Ready()
}

// Close tcp listener. Stops accepting immediately
// and waits for in-flight connection hand offs
func (l *tcp) Close() error {
	var err error

	l.onceStop.Do(func() {
		close(l.quit)

		err = l.listener.Close()
		l.onConnection.Wait()
	})

	return err
}

// Serve start serving connections
func (l *tcp) Serve() error {
	var tempDelay time.Duration // how long to sleep on accept failure

	for {
		var cn net.Conn
		var err error

		if cn, err = l.listener.Accept(); err != nil {
			// http://zhen.org/blog/graceful-shutdown-of-go-net-dot-listeners/
			select {
			case <-l.quit:
				return nil
			default:
			}

			// Borrowed from go1.3.3/src/pkg/net/http/server.go:1699
			if ne, ok := err.(net.Error); ok && ne.Temporary() { // nolint: staticcheck
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				l.log.Errorw("Couldn't accept connection. Retrying",
					zap.Error(err),
					zap.Duration("retryIn", tempDelay))

				time.Sleep(tempDelay)
				continue
			}
			return err
		}

		tempDelay = 0

		l.onConnection.Add(1)
		go func(cn net.Conn) {
			defer l.onConnection.Done()

			l.handleConnection(cn, l.wrap)
		}(cn)
	}
}

func (l *tcp) wrap(cn net.Conn, id uint64) Conn {
	return newConn(cn, id, l.Metrics.Bytes())
}
