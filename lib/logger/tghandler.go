package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"larder/bot"
)

// botModule tags records written by the bot itself; they are never forwarded.
const botModule = "tgbot"

// Alerter delivers formatted log records to operators.
type Alerter interface {
	SendMessageWithLevel(msg string, level slog.Level)
}

// TelegramHandler is a slog.Handler that sends log messages to Telegram
type TelegramHandler struct {
	handler  slog.Handler
	alerter  Alerter
	minLevel slog.Level
	mu       *sync.Mutex
	attrs    []slog.Attr
	group    string
}

// NewTelegramHandler creates a new TelegramHandler
func NewTelegramHandler(handler slog.Handler, alerter Alerter, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		alerter:  alerter,
		minLevel: minLevel,
		mu:       &sync.Mutex{},
		attrs:    make([]slog.Attr, 0),
	}
}

// Enabled reports whether the wrapped handler takes the record; forwarding
// is decided per record in Handle.
func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.handler.Handle(ctx, record)
	if err != nil {
		return err
	}

	if record.Level < h.minLevel || h.alerter == nil || h.fromBot(record) {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var msg string
	if h.group != "" {
		msg = fmt.Sprintf("*%s* `%s.%s`", record.Level.String(), h.group, record.Message)
	} else {
		msg = fmt.Sprintf("*%s* `%s`", record.Level.String(), record.Message)
	}

	for _, attr := range h.attrs {
		msg += formatAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		msg += formatAttr(attr)
		return true
	})

	h.alerter.SendMessageWithLevel(msg, record.Level)
	return nil
}

func (h *TelegramHandler) fromBot(record slog.Record) bool {
	for _, attr := range h.attrs {
		if isBotModule(attr) {
			return true
		}
	}
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		found = isBotModule(attr)
		return !found
	})
	return found
}

func isBotModule(attr slog.Attr) bool {
	return attr.Key == "mod" && attr.Value.String() == botModule
}

func formatAttr(attr slog.Attr) string {
	if attr.Key == "error" {
		return fmt.Sprintf("\n%s: ```error %v ```", attr.Key, attr.Value)
	}
	return bot.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		alerter:  h.alerter,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		alerter:  h.alerter,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    h.attrs,
		group:    group,
	}
}
