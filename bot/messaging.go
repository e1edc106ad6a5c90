package bot

import (
	"log/slog"
)

// SendMessageWithLevel routes an alert to the admin chats: errors go out at
// once, lower levels are collected into the next digest.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	if level < t.minLogLevel {
		return
	}
	if level >= slog.LevelError || t.digest == nil {
		t.notifyAdmins(msg)
		return
	}
	for _, id := range t.adminIds {
		t.digest.Add(id, msg, level)
	}
}
