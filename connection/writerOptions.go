package connection

import (
	"time"

	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/transport"
)

func (s *writer) setOptions(opts ...writerOption) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}

	return nil
}

func wrOnConnClose(val signalConnectionClose) writerOption {
	return func(t *writer) error {
		t.onConnectionClose = val
		return nil
	}
}

func wrConn(val transport.Conn) writerOption {
	return func(t *writer) error {
		t.conn = val
		return nil
	}
}

func wrMetric(val metrics.Packets) writerOption {
	return func(t *writer) error {
		t.metric = val
		return nil
	}
}

func wrMaxPending(val int) writerOption {
	return func(t *writer) error {
		if val <= 0 {
			return ErrInvalidArgs
		}

		t.maxPending = val
		return nil
	}
}

func wrWriteDeadline(val time.Duration) writerOption {
	return func(t *writer) error {
		if val > 0 {
			t.writeDeadline = val
		}
		return nil
	}
}

func wrLog(val *zap.SugaredLogger) writerOption {
	return func(t *writer) error {
		t.log = val
		return nil
	}
}
