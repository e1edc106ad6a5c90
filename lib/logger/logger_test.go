package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"larder/lib/sl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alert struct {
	msg   string
	level slog.Level
}

type recordingAlerter struct {
	alerts []alert
}

func (r *recordingAlerter) SendMessageWithLevel(msg string, level slog.Level) {
	r.alerts = append(r.alerts, alert{msg: msg, level: level})
}

func newTestLogger(minLevel slog.Level) (*slog.Logger, *recordingAlerter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	base := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	alerter := &recordingAlerter{}
	return slog.New(NewTelegramHandler(base, alerter, minLevel)), alerter, buf
}

func TestTelegramHandler_ForwardsAtMinLevel(t *testing.T) {
	log, alerter, buf := newTestLogger(slog.LevelWarn)

	log.Info("quiet")
	log.Warn("invite reconciliation", slog.String("invite_id", "inv-1"))

	assert.Contains(t, buf.String(), "quiet")
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, slog.LevelWarn, alerter.alerts[0].level)
	assert.Contains(t, alerter.alerts[0].msg, "`invite reconciliation`")
	assert.Contains(t, alerter.alerts[0].msg, "invite\\_id: inv\\-1")
}

func TestTelegramHandler_IncludesWithAttrsAndGroup(t *testing.T) {
	log, alerter, _ := newTestLogger(slog.LevelError)

	log.With(sl.Module("impl.registration")).WithGroup("saga").Error("claim lost")

	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0].msg, "`saga.claim lost`")
	assert.Contains(t, alerter.alerts[0].msg, "mod: impl\\.registration")
}

func TestTelegramHandler_SkipsBotRecords(t *testing.T) {
	log, alerter, buf := newTestLogger(slog.LevelWarn)

	log.With(sl.Module("tgbot")).Error("sending message")
	log.Error("sending message", sl.Module("tgbot"))

	assert.Contains(t, buf.String(), "sending message")
	assert.Empty(t, alerter.alerts)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warn "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelError, ParseLevel(""))
}
