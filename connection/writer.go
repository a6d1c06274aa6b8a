package connection

import (
	"bufio"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	"github.com/VolantMQ/vlnats/transport"
)

const writeBufferSize = 32 * 1024

type signalConnectionClose func(error)

type writerOption func(*writer) error

type writer struct {
	conn              transport.Conn
	onConnectionClose signalConnectionClose
	metric            metrics.Packets
	log               *zap.SugaredLogger
	queue             chan packet.IFace
	stop              chan struct{}
	done              chan struct{}
	buf               *bufio.Writer
	final             packet.IFace
	scratch           []byte
	onStop            sync.Once
	started           atomic.Bool
	flushBy           atomic.Int64
	maxPending        int
	writeDeadline     time.Duration
}

func newWriter() *writer {
	return &writer{
		maxPending:    DefaultMaxPending,
		writeDeadline: DefaultWriteDeadline,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (s *writer) init() {
	s.queue = make(chan packet.IFace, s.maxPending)
	s.buf = bufio.NewWriterSize(s.conn, writeBufferSize)
}

func (s *writer) isAlive() bool {
	select {
	case <-s.stop:
		return false
	case <-s.done:
		return false
	default:
	}

	return true
}

// send queues control operation. Blocks until queued or writer stopped
func (s *writer) send(op packet.IFace) error {
	if !s.isAlive() {
		return ErrClosed
	}

	select {
	case s.queue <- op:
		return nil
	case <-s.stop:
		return ErrClosed
	case <-s.done:
		return ErrClosed
	}
}

// deliver queues message if there is room for it. Never blocks
func (s *writer) deliver(op packet.IFace) bool {
	if !s.isAlive() {
		// session is going away, not a slow consumer
		return true
	}

	select {
	case s.queue <- op:
		return true
	default:
		return false
	}
}

func (s *writer) pending() int {
	return len(s.queue)
}

// writeNow writes operation bypassing the queue. Valid only before routine started
func (s *writer) writeNow(op packet.IFace) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeDeadline)); err != nil {
		return err
	}

	if err := s.write(op); err != nil {
		return err
	}

	return s.buf.Flush()
}

// routine writes queued operations. started must be set before it is launched
func (s *writer) routine() {
	defer close(s.done)

	for {
		select {
		case op := <-s.queue:
			if err := s.batch(op); err != nil {
				s.log.Debugw("write", "error", err)
				go s.onConnectionClose(err)
				return
			}
		case <-s.stop:
			s.drain()
			return
		}
	}
}

// batch writes op and everything queued behind it, then flushes
func (s *writer) batch(op packet.IFace) error {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return err
	}

	err := s.write(op)

	for err == nil && len(s.queue) > 0 {
		err = s.write(<-s.queue)
	}

	if err != nil {
		return err
	}

	return s.buf.Flush()
}

func (s *writer) drain() {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return
	}

	var err error

	for err == nil && len(s.queue) > 0 {
		err = s.write(<-s.queue)
	}

	if err == nil && s.final != nil {
		err = s.write(s.final)
	}

	if err == nil {
		err = s.buf.Flush()
	}

	if err != nil {
		s.log.Debugw("flush on close", "error", err, "dropped", len(s.queue))
	}
}

func (s *writer) write(op packet.IFace) error {
	var err error

	if s.scratch, err = packet.AppendEncode(s.scratch[:0], op); err != nil {
		if t := op.Type(); t == packet.MSG || t == packet.HMSG {
			// message is lost for this subscriber only
			s.metric.OnDropped(1)
			s.log.Warnw("drop unencodable message", "type", t.Name(), "error", err)
			return nil
		}

		return errors.Wrapf(err, "encode %s", op.Type().Name())
	}

	if _, err = s.buf.Write(s.scratch); err != nil {
		return err
	}

	s.metric.OnSent(op.Type())

	return nil
}

// deadline of next network write. Teardown shortens it to the flush deadline
func (s *writer) deadline() time.Time {
	d := time.Now().Add(s.writeDeadline)

	if by := s.flushBy.Load(); by != 0 && by < d.UnixNano() {
		return time.Unix(0, by)
	}

	return d
}

// shutdown stops writer. Queued operations followed by final are flushed
// within timeout. Blocks until writer routine exits
func (s *writer) shutdown(final packet.IFace, timeout time.Duration) {
	s.onStop.Do(func() {
		s.final = final
		s.flushBy.Store(time.Now().Add(timeout).UnixNano())
		close(s.stop)
	})

	if s.started.Load() {
		<-s.done
	}
}
