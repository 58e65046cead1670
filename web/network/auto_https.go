// Package network provides the listener used when the panel serves HTTPS:
// plain HTTP requests arriving on the TLS port are redirected to https.
package network

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"
)

// tlsHandshake is the record type byte that starts every TLS ClientHello.
const tlsHandshake = 0x16

// AutoHttpsListener wraps a net.Listener whose connections are expected to
// speak TLS. Connections that start with anything else are answered with a
// 307 redirect to the https URL and closed.
type AutoHttpsListener struct {
	net.Listener
}

func NewAutoHttpsListener(listener net.Listener) net.Listener {
	return &AutoHttpsListener{Listener: listener}
}

func (l *AutoHttpsListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &autoHttpsConn{Conn: conn}, nil
}

type autoHttpsConn struct {
	net.Conn

	once   sync.Once
	prefix []byte
	err    error
}

func (c *autoHttpsConn) Read(buf []byte) (int, error) {
	c.once.Do(c.sniff)
	if c.err != nil {
		return 0, c.err
	}
	if len(c.prefix) > 0 {
		n := copy(buf, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(buf)
}

func (c *autoHttpsConn) sniff() {
	first := make([]byte, 1)
	if _, err := io.ReadFull(c.Conn, first); err != nil {
		c.err = err
		return
	}
	if first[0] == tlsHandshake {
		c.prefix = first
		return
	}

	reader := bufio.NewReader(io.MultiReader(bytes.NewReader(first), c.Conn))
	if req, err := http.ReadRequest(reader); err == nil {
		resp := http.Response{
			StatusCode: http.StatusTemporaryRedirect,
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{},
			Close:      true,
		}
		resp.Header.Set("Location", "https://"+req.Host+req.RequestURI)
		_ = resp.Write(c.Conn)
	}
	_ = c.Conn.Close()
	c.err = net.ErrClosed
}
