package channel

import (
	"context"
	"io"
	"sync"
)

// Writer prints one event per line. It backs the stdout channel and is handy
// for piping a replay into other tools.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter returns a channel writing to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Name() string { return KindStdout }

// Deliver writes msg.Body followed by a newline. The event ID doubles as the
// delivery ID.
func (w *Writer) Deliver(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	line := make([]byte, 0, len(msg.Body)+1)
	line = append(line, msg.Body...)
	line = append(line, '\n')
	if _, err := w.out.Write(line); err != nil {
		return "", deliveryFailed(KindStdout, msg, err)
	}
	return msg.EventID, nil
}

func (w *Writer) Close() error { return nil }
