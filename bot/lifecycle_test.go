package bot

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTelegram answers the Bot API methods the bot calls and counts them.
type fakeTelegram struct {
	requests atomic.Int64
	sent     atomic.Int64
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		select {
		case <-r.Context().Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		f.sent.Add(1)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func newFakeBot(t *testing.T) (*TgBot, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBot("123:test", &tgbotapi.BotOpts{
		DisableTokenCheck: true,
		BotClient: &tgbotapi.BaseBotClient{
			Client:             http.Client{},
			DefaultRequestOpts: &tgbotapi.RequestOpts{APIURL: srv.URL, Timeout: 5 * time.Second},
		},
	})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newTgBot(api, []int64{42}, logger), fake
}

func TestStartStopWithConcurrentAlerts(t *testing.T) {
	tg, fake := newFakeBot(t)

	started := make(chan error, 1)
	go func() { started <- tg.Start() }()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.SendMessageWithLevel("warn", slog.LevelWarn)
		}()
	}
	wg.Wait()

	tg.Stop()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	// the final digest flush reaches the admin chat
	assert.GreaterOrEqual(t, fake.sent.Load(), int64(1))
}

func TestStopBeforeStart(t *testing.T) {
	tg, fake := newFakeBot(t)

	tg.Stop()
	tg.Stop()
	require.NoError(t, tg.Start())
	assert.Zero(t, fake.requests.Load())
}
