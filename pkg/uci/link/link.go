// Package link opens byte-stream links to UWB devices by URL.
package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/robotalks/uci.go/pkg/uci/comm"
	"github.com/robotalks/uci.go/pkg/uci/link/mqtt"
	"github.com/robotalks/uci.go/pkg/uci/link/websocket"
)

// Open opens a link by URL:
//
//	tty:///dev/ttyUSB0          device file (serial port configured externally)
//	serial:///dev/ttyACM0       same as tty
//	tcp://host:port             TCP stream, e.g. a ser2net bridge
//	ws://host:port/path         websocket binary messages
//	wss://host:port/path
//	mqtt://host:port/prefix/?device=name
func Open(ctx context.Context, linkURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}
	switch u.Scheme {
	case "tty", "serial":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return nil, fmt.Errorf("device path missing in %q", linkURL)
		}
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "tcp":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		l, err := websocket.Dial(ctx, linkURL)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "mqtt", "mqtts":
		l, err := mqtt.Dial(linkURL)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}

// Opener returns a comm.OpenFunc which opens the link by URL.
func Opener(ctx context.Context, linkURL string) comm.OpenFunc {
	return func() (io.ReadWriter, error) {
		rw, err := Open(ctx, linkURL)
		if err != nil {
			return nil, err
		}
		return rw, nil
	}
}
