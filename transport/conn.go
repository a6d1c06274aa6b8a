package transport

import (
	"net"

	"github.com/VolantMQ/vlnats/metrics"
)

// Conn is wrapper to net.Conn
// implemented to encapsulate bytes statistic and client identity
type Conn interface {
	net.Conn

	// ID client id assigned at accept
	ID() uint64
}

type conn struct {
	net.Conn
	id   uint64
	stat metrics.Bytes
}

var _ Conn = (*conn)(nil)

// Handler is invoked for every accepted connection.
// Returned error closes the connection
type Handler interface {
	OnConnection(Conn) error
}

// HandlerFunc adapter to use ordinary function as Handler
type HandlerFunc func(Conn) error

// OnConnection ...
func (f HandlerFunc) OnConnection(c Conn) error {
	return f(c)
}

func newConn(cn net.Conn, id uint64, stat metrics.Bytes) *conn {
	return &conn{
		Conn: cn,
		id:   id,
		stat: stat,
	}
}

// ID ...
func (c *conn) ID() uint64 {
	return c.id
}

// Read ...
func (c *conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)

	c.stat.OnRecv(n)

	return n, err
}

// Write ...
func (c *conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)

	c.stat.OnSent(n)

	return n, err
}
