// Package channel adapts chat platforms to the relay engine. Each adapter
// turns platform events into domain.InboundMessage values and hands them to
// a domain.MessageHandler together with a handle bound to the source message.
package channel

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible. Cuts never fall inside a
// multi-byte character.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// sendChunks splits text and sends the first chunk with first and the rest
// with rest. Only a failure of the first chunk is returned, so callers can
// retry the whole text without duplicating delivered chunks.
func sendChunks(text string, maxLen int, first, rest func(string) error, logger *slog.Logger) error {
	chunks := splitMessage(text, maxLen)
	if err := first(chunks[0]); err != nil {
		return err
	}
	for i, chunk := range chunks[1:] {
		if err := rest(chunk); err != nil {
			logger.Error("send continuation chunk failed", "chunk", i+2, "of", len(chunks), "err", err)
		}
	}
	return nil
}

// typingLoop calls send right away and then every interval until the
// returned stop func is called or ctx ends. stop is safe to call twice.
func typingLoop(ctx context.Context, interval time.Duration, send func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		send()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
