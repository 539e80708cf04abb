package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"psi09relay/internal/domain"
)

type fakeBackend struct {
	mu       sync.Mutex
	calls    []domain.RelayPayload
	response *domain.RelayResponse
	err      error
}

func (f *fakeBackend) Relay(ctx context.Context, p domain.RelayPayload) (*domain.RelayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	return f.response, f.err
}

type fakeConv struct {
	mu         sync.Mutex
	replyErr   error
	sendErr    error
	replies    []string
	sends      []string
	typing     int
	typingDone int
}

func (c *fakeConv) Reply(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return c.replyErr
}

func (c *fakeConv) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, text)
	return c.sendErr
}

func (c *fakeConv) Typing(ctx context.Context) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.typingDone++
	}
}

// recordHandler keeps slog records so tests can count error lines.
type recordHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newRecordLogger() (*slog.Logger, func(level slog.Level) int) {
	h := recordHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	count := func(level slog.Level) int {
		h.mu.Lock()
		defer h.mu.Unlock()
		n := 0
		for _, r := range *h.records {
			if r.Level == level {
				n++
			}
		}
		return n
	}
	return slog.New(h), count
}

func (h recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r)
	return nil
}

func (h recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h recordHandler) WithGroup(string) slog.Handler { return h }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
