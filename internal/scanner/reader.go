package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrReaderClosed is returned once a reader's underlying device is gone.
var ErrReaderClosed = errors.New("tag reader closed")

// Reader is a polled tag reader. ReadIdentifier must not block: it returns
// ok=false when no tag is waiting.
type Reader interface {
	ReadIdentifier(ctx context.Context) (id string, ok bool, err error)
}

// LineReader reads one tag UID per line from a device such as a serial or
// USB RFID reader in text mode.
type LineReader struct {
	lines    chan string
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	err      error
	closer   io.Closer
}

// OpenDevice opens a line-oriented reader device.
func OpenDevice(path string) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reader device %s: %w", path, err)
	}
	r := NewLineReader(f)
	r.closer = f
	return r, nil
}

// NewLineReader starts consuming src in the background.
func NewLineReader(src io.Reader) *LineReader {
	r := &LineReader{
		lines: make(chan string, 16),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go r.consume(src)
	return r
}

func (r *LineReader) consume(src io.Reader) {
	defer close(r.done)

	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case r.lines <- line:
		case <-r.stop:
			r.err = ErrReaderClosed
			return
		}
	}
	r.err = sc.Err()
	if r.err == nil {
		r.err = ErrReaderClosed
	}
}

// ReadIdentifier returns the next buffered UID, if any.
func (r *LineReader) ReadIdentifier(ctx context.Context) (string, bool, error) {
	select {
	case line := <-r.lines:
		return line, true, nil
	default:
	}

	select {
	case <-r.done:
		return "", false, r.err
	default:
		return "", false, nil
	}
}

// Close stops the background consumer and releases the underlying device.
func (r *LineReader) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// SimulatedReader is an in-memory tag queue for running without hardware.
// Identifiers handed to Inject come out of ReadIdentifier in order.
type SimulatedReader struct {
	mu    sync.Mutex
	queue []string
}

// NewSimulatedReader returns an empty queue.
func NewSimulatedReader() *SimulatedReader {
	return &SimulatedReader{}
}

// Inject queues identifiers as if they had been read from a tag.
func (r *SimulatedReader) Inject(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, ids...)
}

// Pending reports how many injected identifiers have not been read yet.
func (r *SimulatedReader) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ReadIdentifier pops the oldest injected identifier, if any.
func (r *SimulatedReader) ReadIdentifier(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return "", false, nil
	}
	id := r.queue[0]
	r.queue = r.queue[1:]
	return id, true, nil
}
