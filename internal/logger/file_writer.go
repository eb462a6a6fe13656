package logger

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/supermechanical/rangelink/internal/errors"
)

const (
	fileBufferSize    = 32 * 1024
	fileFlushInterval = 5 * time.Second
)

// fileWriter buffers log output and flushes it periodically.
type fileWriter struct {
	mu   sync.Mutex
	f    *os.File
	buf  *bufio.Writer
	stop chan struct{}
	done chan struct{}
}

func openFileWriter(path string) (*fileWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, errors.New(err).
			Component("logger").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path from config
	if err != nil {
		return nil, errors.New(err).
			Component("logger").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	w := &fileWriter{
		f:    f,
		buf:  bufio.NewWriterSize(f, fileBufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.flushLoop()
	return w, nil
}

func (w *fileWriter) flushLoop() {
	defer close(w.done)
	t := time.NewTicker(fileFlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = w.Flush()
		case <-w.stop:
			return
		}
	}
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *fileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close must be called once.
func (w *fileWriter) Close() error {
	close(w.stop)
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.f
	w.f = nil
	return errors.Join(w.buf.Flush(), f.Sync(), f.Close())
}
