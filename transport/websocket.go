package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/VolantMQ/vlnats/configuration"
)

// ConfigWS listener object for websocket server
type ConfigWS struct {
	Path      string
	transport *Config
}

type ws struct {
	baseConfig
	http     *http.Server
	up       websocket.Upgrader
	listener net.Listener
	path     string
}

type connWs struct {
	conn *websocket.Conn
	prev io.Reader
}

var _ net.Conn = (*connWs)(nil)

// NewConfigWS allocate new transport config for websocket transport
// Use of this function is preferable instead of direct allocation of ConfigWS
func NewConfigWS(transport *Config) *ConfigWS {
	return &ConfigWS{
		Path:      "/",
		transport: transport,
	}
}

// NewWS create new websocket transport. NATS byte stream is carried in binary frames
func NewWS(config *ConfigWS, internal *InternalConfig) (Provider, error) {
	if config == nil {
		return nil, ErrInvalidArgs
	}

	l := &ws{
		path: config.Path,
	}

	if err := l.init(internal, config.transport); err != nil {
		return nil, err
	}

	if len(l.path) == 0 {
		l.path = "/"
	} else if l.path[0] != '/' {
		l.path = "/" + l.path
	}

	ln, err := net.Listen("tcp", l.address())
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", l.address())
	}

	l.protocol = "ws"
	l.listener = ln
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.log = configuration.GetLogger().Named("listener: " + l.protocol + "://" + ln.Addr().String())

	l.up = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}

	l.http = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return l, nil
}

func (l *ws) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}

	cn, err := l.up.Upgrade(w, r, nil)
	if err != nil {
		l.log.Errorf("upgrade error: %s", err)
		return
	}

	l.onConnection.Add(1)
	defer l.onConnection.Done()

	l.handleConnection(&connWs{conn: cn}, l.wrap)
}

func (l *ws) wrap(cn net.Conn, id uint64) Conn {
	return newConn(cn, id, l.Metrics.Bytes())
}

// Ready ...
func (l *ws) Ready() error {
	if l.isDone() {
		return ErrNotServing
	}

	return nil
}

// Alive ...
func (l *ws) Alive() error {
	return l.Ready()
}

// Serve ...
func (l *ws) Serve() error {
	if e := l.http.Serve(l.listener); e != http.ErrServerClosed {
		return e
	}

	return nil
}

// Close websocket listener
func (l *ws) Close() error {
	var err error

	l.onceStop.Do(func() {
		close(l.quit)

		ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ctxCancel()

		err = l.http.Shutdown(ctx)
		l.onConnection.Wait()
	})

	return err
}

// Read reassembles websocket messages into byte stream
func (c *connWs) Read(b []byte) (int, error) {
	for {
		if c.prev != nil {
			n, err := c.prev.Read(b)
			if err == io.EOF {
				c.prev = nil

				if n == 0 {
					continue
				}

				err = nil
			}

			return n, err
		}

		var err error
		if _, c.prev, err = c.conn.NextReader(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}

			return 0, err
		}
	}
}

func (c *connWs) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (c *connWs) Close() error {
	return c.conn.Close()
}

func (c *connWs) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *connWs) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *connWs) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}

	return c.conn.SetWriteDeadline(t)
}

func (c *connWs) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *connWs) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
