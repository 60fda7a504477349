package logger

import (
	"errors"
	"io"
	"sync"
)

// asyncWriter moves log lines off the caller goroutine. Lines are written in
// order to every sink; the first write error is sticky and returned to callers.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan struct{}
	done    chan struct{}
	once    sync.Once

	sinks []io.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(sinks []io.Writer, queue int) *asyncWriter {
	if queue <= 0 {
		queue = 256
	}
	w := &asyncWriter{
		lines:   make(chan []byte, queue),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.emit(line)
		case ack := <-w.flushes:
			// drain whatever is queued before acknowledging
			for drained := false; !drained; {
				select {
				case line, ok := <-w.lines:
					if !ok {
						close(ack)
						return
					}
					w.emit(line)
				default:
					drained = true
				}
			}
			close(ack)
		}
	}
}

func (w *asyncWriter) emit(line []byte) {
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
	}
}

// Write queues a copy of p. It blocks when the queue is full rather than dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	select {
	case <-w.done:
		return errors.New("logger: writer closed")
	default:
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan struct{})
	select {
	case w.flushes <- ack:
		<-ack
	case <-w.done:
	}
	return w.Err()
}

// Close drains the queue and stops the writer goroutine.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.lines) })
	<-w.done
	return w.Err()
}

// Err reports the first sink write error.
func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
