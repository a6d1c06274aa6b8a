package connection

import (
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/packet"
	"github.com/VolantMQ/vlnats/transport"
)

const readBufferSize = 32 * 1024

type signalIncoming func(packet.IFace) error

type reader struct {
	conn            transport.Conn
	processIncoming signalIncoming
	decoder         *packet.Decoder
	log             *zap.SugaredLogger
	quit            <-chan struct{}
	decoderOpts     []packet.DecoderOption
	recv            []byte
}

type readerOption func(*reader) error

func newReader() *reader {
	return &reader{}
}

// routine reads connection until error. Inbound operations are processed in arrival order
func (s *reader) routine() error {
	s.decoder = packet.NewDecoder(s.decoderOpts...)
	s.recv = make([]byte, readBufferSize)

	defer func() {
		s.decoder.Reset()
		s.recv = nil
	}()

	for {
		n, err := s.conn.Read(s.recv)
		if n > 0 {
			_, _ = s.decoder.Write(s.recv[:n])

			if e := s.processBuffered(); e != nil {
				return e
			}
		}

		if err != nil {
			return err
		}
	}
}

func (s *reader) processBuffered() error {
	for {
		pkt, err := s.decoder.Decode()
		if err != nil {
			// partially framed data is never recovered
			s.log.Debugw("discard inbound buffer", "buffered", s.decoder.Buffered(), "error", err)
			s.decoder.Reset()
			return err
		}

		if pkt == nil {
			return nil
		}

		// buffered operations are not handled once teardown started
		select {
		case <-s.quit:
			return ErrClosed
		default:
		}

		if err = s.processIncoming(pkt); err != nil {
			return err
		}
	}
}
