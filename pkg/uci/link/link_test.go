package link

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/uci.go/pkg/uci/link/mqtt"
)

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	rw, err := Open(context.Background(), "tcp://"+ln.Addr().String())
	require.NoError(t, err)
	defer rw.Close()
	_, err = rw.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(rw, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf)
}

func TestOpenDeviceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyFAKE")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	rw, err := Open(context.Background(), "tty://"+path)
	require.NoError(t, err)
	_, err = rw.Write([]byte{0x20, 0x02, 0, 0})
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x20, 0x02, 0, 0}, data)

	_, err = Opener(context.Background(), "serial://"+filepath.Join(t.TempDir(), "missing"))()
	require.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	testCases := []struct {
		name string
		url  string
	}{
		{"unknown scheme", "usb://dev"},
		{"missing tty path", "tty://"},
		{"invalid url", "://"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rw, err := Open(context.Background(), tc.url)
			require.Error(t, err)
			require.Nil(t, rw)
		})
	}

	_, err := Open(context.Background(), "mqtt://localhost:1883/uci/")
	require.Equal(t, mqtt.ErrNoDevice, err)
}
