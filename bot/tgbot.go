// Package bot is the operator console on Telegram.
//
//   - tgbot.go    : TgBot struct, lifecycle (Start/Stop), Operator interface
//   - commands.go : admin commands: /status, /invite, /fill, /reconciliations
//   - menus.go    : command menu for admin chats
//   - messaging.go: alert routing: errors sent at once, lower levels batched
//   - digest.go   : DigestBuffer for batched alerts
//   - helpers.go  : Sanitize, plainResponse, notifyAdmins, splitMessage
//
// Only chats listed in the configured admin ids may run commands or receive
// alerts; the bot keeps no user state of its own.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"larder/entity"
	"larder/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

const (
	defaultDigestInterval = 30 * time.Minute
	commandTimeout        = 30 * time.Second
)

// Operator is the slice of the control plane exposed to admins in chat.
type Operator interface {
	CapacityStatus(ctx context.Context) (*entity.CapacityStatus, error)
	CreateInvite(ctx context.Context) (*entity.InviteCode, error)
	FillInvites(ctx context.Context, maxUsers int) (*entity.FillResult, error)
	ListReconciliations(ctx context.Context) ([]*entity.Reconciliation, error)
}

type TgBot struct {
	log            *slog.Logger
	api            *tgbotapi.Bot
	ops            Operator
	adminIds       []int64
	minLogLevel    slog.Level
	digestInterval time.Duration
	updater        *ext.Updater
	digest         *DigestBuffer

	mu      sync.Mutex
	polling bool
	stopped bool
	done    chan struct{}
}

func NewTgBot(apiKey string, adminIds []int64, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	return newTgBot(api, adminIds, log), nil
}

// newTgBot builds everything Start and Stop touch, so both may run on any
// goroutine once it returns.
func newTgBot(api *tgbotapi.Bot, adminIds []int64, log *slog.Logger) *TgBot {
	tgBot := &TgBot{
		log:            log.With(sl.Module("tgbot")),
		api:            api,
		adminIds:       adminIds,
		minLogLevel:    slog.LevelWarn,
		digestInterval: defaultDigestInterval,
		done:           make(chan struct{}),
	}
	tgBot.digest = NewDigestBuffer(tgBot, tgBot.digestInterval)

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			tgBot.log.Warn("handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	dispatcher.AddHandler(handlers.NewCommand("start", tgBot.start))
	dispatcher.AddHandler(handlers.NewCommand("help", tgBot.help))
	dispatcher.AddHandler(handlers.NewCommand("status", tgBot.status))
	dispatcher.AddHandler(handlers.NewCommand("invite", tgBot.invite))
	dispatcher.AddHandler(handlers.NewCommand("fill", tgBot.fill))
	dispatcher.AddHandler(handlers.NewCommand("reconciliations", tgBot.reconciliations))
	tgBot.updater = ext.NewUpdater(dispatcher, nil)

	return tgBot
}

func (t *TgBot) SetOperator(ops Operator) {
	t.ops = ops
}

// SetMinLogLevel drops alerts below level. Call before Start.
func (t *TgBot) SetMinLogLevel(level slog.Level) {
	t.minLogLevel = level
}

// Start polls for updates until Stop is called. After Stop it returns at once.
func (t *TgBot) Start() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.digest.StartTicker()
	t.setCommandMenus()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.polling = true
	t.mu.Unlock()

	<-t.done
	return nil
}

func (t *TgBot) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)

	t.digest.Stop()
	if t.polling {
		t.log.Info("stopping telegram bot")
		if err := t.updater.Stop(); err != nil {
			t.log.Warn("stopping updater", sl.Err(err))
		}
	}
}

func (t *TgBot) isAdmin(chatId int64) bool {
	return slices.Contains(t.adminIds, chatId)
}
