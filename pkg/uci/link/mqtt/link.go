package mqtt

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Topic suffixes of a device, relative to the topic prefix.
const (
	// TopicRx carries bytes received from the device.
	TopicRx = "rx"
	// TopicTx carries bytes to send to the device.
	TopicTx = "tx"
	// TopicReport is the parent of report topics published by the host.
	TopicReport = "report"
)

// ErrNoDevice indicates the device is not specified in the URL.
var ErrNoDevice = errors.New("device not specified")

// DeviceTopic returns the topic of a device.
func DeviceTopic(device, suffix string) string {
	return device + "/" + suffix
}

// Link is a byte stream to a device bridged over MQTT, e.g. a UART
// bridge publishing received bytes to <device>/rx and writing bytes
// published on <device>/tx.
type Link struct {
	Queue  *Queue
	Device string

	sub      *Subscription
	dataCh   chan []byte
	pending  []byte
	closeCh  chan struct{}
	closeErr error
	once     sync.Once
}

// NewLink creates a Link on the queue and subscribes to <device>/rx.
func NewLink(q *Queue, device string) *Link {
	l := &Link{
		Queue:   q,
		Device:  device,
		dataCh:  make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}
	l.sub = q.Sub(DeviceTopic(device, TopicRx), l.handleMsg)
	return l
}

// Dial connects to the broker and opens the link of the device, e.g.
// mqtt://localhost:1883/uci/?device=dev0
func Dial(brokerURL string) (*Link, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	device := q.Query.Get("device")
	if device == "" {
		return nil, ErrNoDevice
	}
	if err := q.Connect(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	l := NewLink(q, device)
	l.sub.Token.Wait()
	if err := l.sub.Token.Error(); err != nil {
		q.Close()
		return nil, fmt.Errorf("mqtt subscribe: %w", err)
	}
	return l, nil
}

// Read implements io.Reader. Payloads of messages are concatenated.
func (l *Link) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case data := <-l.dataCh:
			l.pending = data
		case <-l.closeCh:
			return 0, io.EOF
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write implements io.Writer, each write is published as one message.
func (l *Link) Write(p []byte) (int, error) {
	select {
	case <-l.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}
	if err := l.Queue.Pub(DeviceTopic(l.Device, TopicTx), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (l *Link) Close() error {
	l.once.Do(func() {
		close(l.closeCh)
		l.closeErr = l.sub.Close()
		l.Queue.Close()
	})
	return l.closeErr
}

func (l *Link) handleMsg(_ string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	data := append([]byte(nil), payload...)
	select {
	case l.dataCh <- data:
	case <-l.closeCh:
	}
}
