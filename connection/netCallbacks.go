package connection

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/packet"
)

// onConnectionClose releases session resources. Effective only on first invoke.
// Concurrent callers block until teardown completes
func (s *impl) onConnectionClose(status error) {
	s.onConnClose.Do(func() {
		s.state.Store(int32(stateClosing))
		s.cause = status

		// shutdown quit channel tells all routines finita la commedia.
		// Subscribe either completes before quit is closed or sees it closed
		s.subLock.Lock()
		close(s.quit)
		s.subLock.Unlock()

		removed := s.topics.RemoveAll(s.id)

		var final packet.IFace
		if packet.IsProtocolError(status) {
			s.metric.Packets().OnRejected(1)
			final = &packet.Err{Reason: packet.Reason(status)}
		}

		s.tx.shutdown(final, s.flushTimeout)

		if err := s.conn.Close(); err != nil && !isClosedErr(err) {
			s.log.Errorw("close connection", zap.Error(err))
		}

		fields := []interface{}{
			"remote", s.conn.RemoteAddr().String(),
			"subscriptions", removed,
		}

		switch {
		case status == nil || isClosedErr(status):
			s.log.Debugw("connection closed", fields...)
		case errors.Cause(status) == ErrShutdown:
			s.log.Debugw("connection closed by server", fields...)
		case packet.IsProtocolError(status):
			s.log.Warnw("protocol violation", append(fields, zap.Error(status))...)
		default:
			s.log.Infow("connection closed", append(fields, zap.Error(status))...)
		}
	})
}

func isClosedErr(err error) bool {
	err = errors.Cause(err)

	return err == io.EOF || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
