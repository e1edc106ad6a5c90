package bot

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const maxTelegramMessageLen = 4096

type DigestEntry struct {
	Message   string
	Level     slog.Level
	Timestamp time.Time
}

type DigestBuffer struct {
	mu       sync.Mutex
	entries  map[int64][]DigestEntry
	interval time.Duration
	bot      *TgBot
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
}

func NewDigestBuffer(bot *TgBot, interval time.Duration) *DigestBuffer {
	return &DigestBuffer{
		entries:  make(map[int64][]DigestEntry),
		interval: interval,
		bot:      bot,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *DigestBuffer) Add(chatId int64, msg string, level slog.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[chatId] = append(d.entries[chatId], DigestEntry{
		Message:   msg,
		Level:     level,
		Timestamp: time.Now(),
	})
}

// StartTicker flushes every interval until Stop. Later calls are no-ops.
func (d *DigestBuffer) StartTicker() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Flush()
			case <-d.stopCh:
				d.Flush() // final flush
				return
			}
		}
	}()
}

func (d *DigestBuffer) Flush() {
	d.mu.Lock()
	snapshot := d.entries
	d.entries = make(map[int64][]DigestEntry)
	d.mu.Unlock()

	for chatId, entries := range snapshot {
		if len(entries) == 0 {
			continue
		}
		digest := formatDigest(entries)
		parts := splitMessage(digest, maxTelegramMessageLen)
		for _, part := range parts {
			d.bot.plainResponse(chatId, part)
		}
	}
}

// Stop ends the ticker after a final flush; without a ticker it flushes once.
func (d *DigestBuffer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	d.mu.Unlock()

	if !started {
		d.Flush()
		return
	}
	close(d.stopCh)
	<-d.done
}

func formatDigest(entries []DigestEntry) string {
	// Group by level, most severe first
	grouped := make(map[slog.Level][]DigestEntry)
	var levels []slog.Level
	for _, e := range entries {
		if _, ok := grouped[e.Level]; !ok {
			levels = append(levels, e.Level)
		}
		grouped[e.Level] = append(grouped[e.Level], e)
	}
	slices.SortFunc(levels, func(a, b slog.Level) int { return int(b) - int(a) })

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Digest* \\(%d messages\\)\n\n", len(entries)))

	for _, level := range levels {
		levelEntries := grouped[level]
		sb.WriteString(fmt.Sprintf("*%s* \\(%d\\):\n", Sanitize(level.String()), len(levelEntries)))
		for _, e := range levelEntries {
			ts := e.Timestamp.Format("15:04")
			sb.WriteString(fmt.Sprintf("`%s`\n%s\n", ts, e.Message))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
