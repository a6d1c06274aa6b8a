package main

import (
	"bufio"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/VolantMQ/vlnats/packet"
)

var errUnexpected = errors.New("bench: unexpected operation")

// client minimal NATS client speaking raw protocol over tcp
type client struct {
	conn    net.Conn
	wr      *bufio.Writer
	dec     *packet.Decoder
	buf     []byte
	out     []byte
	info    packet.ServerInfo
	timeout time.Duration
}

func dial(rawURL, name string, timeout time.Duration) (*client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "bench: url")
	}

	conn, err := net.DialTimeout("tcp", u.Host, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "bench: dial")
	}

	c := &client{
		conn:    conn,
		wr:      bufio.NewWriterSize(conn, 32*1024),
		dec:     packet.NewDecoder(packet.MaxPayload(64 * 1024 * 1024)),
		buf:     make([]byte, 32*1024),
		timeout: timeout,
	}

	op, err := c.next()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	info, ok := op.(*packet.Info)
	if !ok {
		_ = conn.Close()
		return nil, errors.Wrapf(errUnexpected, "%s instead of INFO", op.Type())
	}

	c.info = info.Info

	connect := &packet.Connect{Info: packet.DefaultConnectInfo()}
	connect.Info.Name = name
	connect.Info.Lang = "go"
	connect.Info.Protocol = 1

	if err = c.write(connect); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *client) write(op packet.IFace) error {
	var err error

	if c.out, err = packet.AppendEncode(c.out[:0], op); err != nil {
		return err
	}

	_, err = c.wr.Write(c.out)

	return err
}

func (c *client) subscribe(subject, queue string, sid uint64) error {
	return c.write(&packet.Subscribe{Subject: subject, Queue: queue, SID: sid})
}

func (c *client) publish(subject string, payload []byte) error {
	return c.write(&packet.Publish{Subject: subject, Payload: payload})
}

func (c *client) flush() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}

	return c.wr.Flush()
}

// next reads one operation from the server
func (c *client) next() (packet.IFace, error) {
	for {
		op, err := c.dec.Decode()
		if err != nil || op != nil {
			return op, err
		}

		if err = c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}

		n, err := c.conn.Read(c.buf)
		if n > 0 {
			_, _ = c.dec.Write(c.buf[:n])
		}

		if err != nil && n == 0 {
			return nil, err
		}
	}
}

// roundTrip waits until server processed everything sent so far.
// Messages arrived meanwhile are passed to onMsg
func (c *client) roundTrip(onMsg func(*packet.Msg)) error {
	if err := c.write(&packet.Ping{}); err != nil {
		return err
	}

	if err := c.flush(); err != nil {
		return err
	}

	for {
		op, err := c.next()
		if err != nil {
			return err
		}

		switch m := op.(type) {
		case *packet.Pong:
			return nil
		case *packet.Msg:
			if onMsg != nil {
				onMsg(m)
			}
		case *packet.Ping:
			if err = c.write(&packet.Pong{}); err != nil {
				return err
			}
		case *packet.Err:
			return errors.Errorf("bench: server error: %s", m.Reason)
		}
	}
}

// receive counts messages until expected amount arrived or read fails
func (c *client) receive(expected int, onMsg func()) (int, error) {
	received := 0

	for received < expected {
		op, err := c.next()
		if err != nil {
			return received, err
		}

		switch m := op.(type) {
		case *packet.Msg:
			received++
			onMsg()
		case *packet.Ping:
			if err = c.write(&packet.Pong{}); err == nil {
				err = c.flush()
			}

			if err != nil {
				return received, err
			}
		case *packet.Err:
			return received, errors.Errorf("bench: server error: %s", m.Reason)
		}
	}

	return received, nil
}

func (c *client) close() error {
	return c.conn.Close()
}
