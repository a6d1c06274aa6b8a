package connection

import (
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/packet"
	"github.com/VolantMQ/vlnats/transport"
)

func (s *reader) setOptions(opts ...readerOption) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}

	return nil
}

func rdProcessIncoming(val signalIncoming) readerOption {
	return func(t *reader) error {
		t.processIncoming = val
		return nil
	}
}

func rdConn(val transport.Conn) readerOption {
	return func(t *reader) error {
		t.conn = val
		return nil
	}
}

func rdMaxPayload(val int) readerOption {
	return func(t *reader) error {
		if val > 0 {
			t.decoderOpts = append(t.decoderOpts, packet.MaxPayload(val))
		}
		return nil
	}
}

func rdMaxControlLine(val int) readerOption {
	return func(t *reader) error {
		t.decoderOpts = append(t.decoderOpts, packet.MaxControlLine(val))
		return nil
	}
}

func rdQuit(val <-chan struct{}) readerOption {
	return func(t *reader) error {
		t.quit = val
		return nil
	}
}

func rdLog(val *zap.SugaredLogger) readerOption {
	return func(t *reader) error {
		t.log = val
		return nil
	}
}
