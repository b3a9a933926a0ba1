// Package ftp simplifies listing and downloading files from FTP and explicit-FTPS servers
package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	jftp "github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

const (
	defaultPort = "21"
	// AnonymousUser is the username used to log in when no credentials are provided.
	AnonymousUser = "anonymous"
	// AnonymousPassword is the password sent with [AnonymousUser].
	AnonymousPassword = "anonymous@"
)

// Options configures a connection to an FTP server.
type Options struct {
	// Timeout bounds connection establishment, and also bounds how long any read or write on the
	// control or data connections may stall before it fails.
	Timeout time.Duration
	// TLS enables explicit FTPS (AUTH TLS) on the control and data connections.
	TLS bool
	// TLSConfig overrides the TLS configuration used when TLS is enabled.
	TLSConfig *tls.Config
}

// Entry is a directory entry listed by an FTP server.
type Entry struct {
	Name string
	Type EntryType
	Size uint64
}

type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDir
	EntryTypeLink
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeFile:
		return "file"
	case EntryTypeDir:
		return "dir"
	case EntryTypeLink:
		return "link"
	default:
		return "unknown"
	}
}

// ServerError reports a failed exchange with an FTP server: a rejected command, a reply which
// couldn't be understood, or a connection which broke off mid-command.
type ServerError struct {
	Addr string
	Op   string
	// Code is the server's reply code, or 0 if the server's reply didn't carry a usable one.
	Code int
	Err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("couldn't %s on %s: %s", e.Op, e.Addr, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

func newServerError(addr, op string, err error) *ServerError {
	serverErr := &ServerError{Addr: addr, Op: op, Err: err}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		serverErr.Code = protoErr.Code
	}
	return serverErr
}

// Conn is a logged-out or logged-in connection to an FTP server.
type Conn struct {
	conn *jftp.ServerConn
	addr string
}

// Dial connects to the FTP server at host, which may omit the port.
func Dial(ctx context.Context, host string, options Options) (*Conn, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, defaultPort)
	}

	d := &dialer{
		ctx:     ctx,
		timeout: options.Timeout,
	}
	dialOptions := []jftp.DialOption{
		jftp.DialWithContext(ctx),
		jftp.DialWithDialFunc(d.dial),
	}
	if options.Timeout > 0 {
		dialOptions = append(dialOptions, jftp.DialWithTimeout(options.Timeout))
	}
	if options.TLS {
		tlsConfig := options.TLSConfig
		if tlsConfig == nil {
			serverName, _, _ := net.SplitHostPort(addr)
			tlsConfig = &tls.Config{
				ServerName: serverName,
				MinVersion: tls.VersionTLS12,
				// Many FTPS servers require data connections to resume the control connection's session
				ClientSessionCache: tls.NewLRUClientSessionCache(0),
			}
		}
		d.tlsConfig = tlsConfig
		dialOptions = append(dialOptions, jftp.DialWithExplicitTLS(tlsConfig))
	}

	conn, err := jftp.Dial(addr, dialOptions...)
	if err != nil {
		return nil, newServerError(addr, "connect", err)
	}
	return &Conn{
		conn: conn,
		addr: addr,
	}, nil
}

// Login authenticates with the server. An empty user logs in anonymously.
func (c *Conn) Login(user, password string) error {
	if user == "" {
		user = AnonymousUser
		if password == "" {
			password = AnonymousPassword
		}
	}
	if err := c.conn.Login(user, password); err != nil {
		return newServerError(c.addr, "log in as "+user, err)
	}
	return nil
}

// ChangeDir changes the current directory on the server.
func (c *Conn) ChangeDir(dir string) error {
	if err := c.conn.ChangeDir(dir); err != nil {
		return newServerError(c.addr, "change to directory "+dir, err)
	}
	return nil
}

// List lists the entries of the current directory on the server.
func (c *Conn) List() ([]Entry, error) {
	listed, err := c.conn.List(".")
	if err != nil {
		return nil, newServerError(c.addr, "list current directory", err)
	}
	entries := make([]Entry, 0, len(listed))
	for _, e := range listed {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entry := Entry{
			Name: e.Name,
			Size: e.Size,
		}
		switch e.Type {
		case jftp.EntryTypeFile:
			entry.Type = EntryTypeFile
		case jftp.EntryTypeFolder:
			entry.Type = EntryTypeDir
		case jftp.EntryTypeLink:
			entry.Type = EntryTypeLink
		default:
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Retrieve downloads the named file in the current directory into w, returning the number of
// bytes copied.
func (c *Conn) Retrieve(name string, w io.Writer) (n int64, err error) {
	resp, err := c.conn.Retr(name)
	if err != nil {
		return 0, newServerError(c.addr, "start download of "+name, err)
	}
	n, err = io.Copy(w, resp)
	if err != nil {
		_ = resp.Close()
		return n, errors.Wrapf(err, "couldn't download %s from %s", name, c.addr)
	}
	// Close reads the server's confirmation that the transfer completed
	if err = resp.Close(); err != nil {
		return n, newServerError(c.addr, "complete download of "+name, err)
	}
	return n, nil
}

// Close logs out and closes the connection.
func (c *Conn) Close() error {
	return errors.Wrapf(c.conn.Quit(), "couldn't close connection to %s", c.addr)
}

// dialer opens the control and data connections of an FTP session, so that every connection gets
// an idle deadline.
type dialer struct {
	ctx       context.Context
	timeout   time.Duration
	tlsConfig *tls.Config
	dialed    int
}

func (d *dialer) dial(network, address string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.timeout}
	conn, err := nd.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}
	var wrapped net.Conn = &idleTimeoutConn{Conn: conn, timeout: d.timeout}
	d.dialed++
	// The first connection is the control connection, which jftp upgrades to TLS itself. It
	// leaves data connections to us when a dial func is provided.
	if d.dialed > 1 && d.tlsConfig != nil {
		wrapped = tls.Client(wrapped, d.tlsConfig)
	}
	return wrapped, nil
}

// idleTimeoutConn fails any read or write which stalls for longer than the timeout.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *idleTimeoutConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
