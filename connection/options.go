package connection

import (
	"time"

	"github.com/bsm/ratelimit"
	"github.com/jonboulle/clockwork"

	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
	"github.com/VolantMQ/vlnats/transport"
)

// Option configures session
type Option func(*impl) error

// SetOptions ...
func (s *impl) SetOptions(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}

	return nil
}

// NetConn accepted connection
func NetConn(val transport.Conn) Option {
	return func(t *impl) error {
		if t.conn != nil {
			return ErrInvalidArgs
		}

		t.conn = val
		return nil
	}
}

// Topics router subscriptions are registered with
func Topics(val topicsTypes.Provider) Option {
	return func(t *impl) error {
		t.topics = val
		return nil
	}
}

// ServerInfo template. Session personalizes it with client id and address
func ServerInfo(val packet.ServerInfo) Option {
	return func(t *impl) error {
		t.info = val
		return nil
	}
}

// Metric ...
func Metric(val metrics.Informer) Option {
	return func(t *impl) error {
		if val != nil {
			t.metric = val
		}
		return nil
	}
}

// Clock used by heartbeat and activity tracking
func Clock(val clockwork.Clock) Option {
	return func(t *impl) error {
		if val != nil {
			t.clock = val
		}
		return nil
	}
}

// Heartbeat period between INFO operations
func Heartbeat(val time.Duration) Option {
	return func(t *impl) error {
		if val > 0 {
			t.heartbeat = val
		}
		return nil
	}
}

// MaxPayload ...
func MaxPayload(val int) Option {
	return func(t *impl) error {
		return rdMaxPayload(val)(t.rx)
	}
}

// MaxControlLine ...
func MaxControlLine(val int) Option {
	return func(t *impl) error {
		return rdMaxControlLine(val)(t.rx)
	}
}

// MaxPending length of outbound queue
func MaxPending(val int) Option {
	return func(t *impl) error {
		return wrMaxPending(val)(t.tx)
	}
}

// WriteDeadline ...
func WriteDeadline(val time.Duration) Option {
	return func(t *impl) error {
		return wrWriteDeadline(val)(t.tx)
	}
}

// FlushTimeout bounds flush of pending data on teardown
func FlushTimeout(val time.Duration) Option {
	return func(t *impl) error {
		if val > 0 {
			t.flushTimeout = val
		}
		return nil
	}
}

// CloseSlowConsumers close connection on first dropped delivery
func CloseSlowConsumers(val bool) Option {
	return func(t *impl) error {
		t.closeSlow = val
		return nil
	}
}

// SlowConsumerLog limiter shared by sessions to throttle slow consumer warnings
func SlowConsumerLog(val *ratelimit.RateLimiter) Option {
	return func(t *impl) error {
		t.slowLog = val
		return nil
	}
}

// OnClose ...
func OnClose(val OnCloseCb) Option {
	return func(t *impl) error {
		t.onClose = val
		return nil
	}
}
