package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/interface/telegram/middleware"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeAPI struct {
	mu    sync.Mutex
	sent  []*telego.SendMessageParams
	meErr error
}

func (f *fakeAPI) GetMe(context.Context) (*telego.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &telego.User{ID: 1, IsBot: true, Username: "jarvis_bot"}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return &telego.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = p.Text
	}
	return out
}

type dispatchFunc func(ctx context.Context, msg *message.Message) error

func (f dispatchFunc) Dispatch(ctx context.Context, msg *message.Message) error { return f(ctx, msg) }

// echo replies with the message text.
var echo = dispatchFunc(func(ctx context.Context, msg *message.Message) error {
	return msg.Reply(ctx, "echo: "+msg.Text)
})

func textUpdate(id int, telegramID int64, text string) telego.Update {
	return telego.Update{
		UpdateID: id,
		Message: &telego.Message{
			MessageID: id,
			From:      &telego.User{ID: telegramID, FirstName: "Tony", LastName: "Stark"},
			Chat:      telego.Chat{ID: telegramID},
			Text:      text,
		},
	}
}

func testConfig() BotConfig {
	cfg := DefaultBotConfig("test")
	cfg.RateLimit = middleware.RateLimitConfig{RequestsPerMinute: 600, BurstSize: 100}
	cfg.GracefulShutdownTimeout = time.Second
	return cfg
}

// run starts b over the given updates and waits for Start to return.
func run(t *testing.T, b *Bot, updates ...telego.Update) {
	t.Helper()
	ch := make(chan telego.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	b.updates = func(context.Context) (<-chan telego.Update, error) { return ch, nil }

	require.NoError(t, b.Start(context.Background()))
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestToMessage(t *testing.T) {
	msg, ok := ToMessage(textUpdate(7, 42, "  /find go  "), nil)
	require.True(t, ok)
	assert.Equal(t, "/find go", msg.Text)
	assert.Equal(t, int64(42), msg.UserID)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Tony Stark", msg.Username)
	assert.NotEmpty(t, CorrelationID(msg))

	updateID, ok := message.Value[int](msg, KeyUpdateID)
	require.True(t, ok)
	assert.Equal(t, 7, updateID)
}

func TestToMessage_Skips(t *testing.T) {
	noText := textUpdate(1, 42, "")
	fromBot := textUpdate(2, 42, "hi")
	fromBot.Message.From.IsBot = true
	noSender := textUpdate(3, 42, "hi")
	noSender.Message.From = nil

	for name, u := range map[string]telego.Update{
		"no message": {UpdateID: 0},
		"no text":    noText,
		"from bot":   fromBot,
		"no sender":  noSender,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := ToMessage(u, nil)
			assert.False(t, ok)
		})
	}
}

func TestNewBot_RequiresToken(t *testing.T) {
	_, err := NewBot(BotConfig{}, echo)
	assert.Error(t, err)
}

func TestBot_DispatchesAndReplies(t *testing.T) {
	api := &fakeAPI{}
	b, err := newBot(testConfig(), api, nil, echo)
	require.NoError(t, err)

	run(t, b, textUpdate(1, 42, "hello"), textUpdate(2, 42, ""), textUpdate(3, 43, "ping"))

	assert.ElementsMatch(t, []string{"echo: hello", "echo: ping"}, api.texts())
	stats := b.Stats()
	assert.Equal(t, int64(3), stats.UpdatesReceived)
	assert.Equal(t, int64(2), stats.UpdatesHandled)
	assert.Equal(t, int64(1), stats.UpdatesSkipped)
	assert.Equal(t, int64(2), stats.MessagesSent)
	assert.False(t, b.IsRunning())
}

func TestBot_DispatchErrorIsCounted(t *testing.T) {
	api := &fakeAPI{}
	failing := dispatchFunc(func(context.Context, *message.Message) error { return errors.New("boom") })
	b, err := newBot(testConfig(), api, nil, failing)
	require.NoError(t, err)

	run(t, b, textUpdate(1, 42, "hello"))

	assert.Equal(t, int64(1), b.Stats().Errors)
	assert.Empty(t, api.texts())
}

func TestBot_PanicIsRecovered(t *testing.T) {
	api := &fakeAPI{}
	panicking := dispatchFunc(func(context.Context, *message.Message) error { panic("nil pointer") })
	b, err := newBot(testConfig(), api, nil, panicking)
	require.NoError(t, err)

	run(t, b, textUpdate(1, 42, "hello"))

	assert.Equal(t, []string{middleware.DefaultRecoveryConfig().UserErrorMessage}, api.texts())
	assert.Equal(t, int64(1), b.Stats().Panics)
}

func TestBot_RateLimited(t *testing.T) {
	api := &fakeAPI{}
	cfg := testConfig()
	cfg.RateLimit = middleware.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}
	cfg.MaxConcurrentUpdates = 1

	var mu sync.Mutex
	dispatched := 0
	counting := dispatchFunc(func(context.Context, *message.Message) error {
		mu.Lock()
		defer mu.Unlock()
		dispatched++
		return nil
	})

	b, err := newBot(cfg, api, nil, counting)
	require.NoError(t, err)

	run(t, b, textUpdate(1, 42, "one"), textUpdate(2, 42, "two"))

	assert.Equal(t, 1, dispatched)
	assert.Equal(t, int64(1), b.Stats().RateLimited)
	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "Too many messages")
}

func TestBot_VerifyFailureStopsStart(t *testing.T) {
	api := &fakeAPI{meErr: errors.New("unauthorized")}
	b, err := newBot(testConfig(), api, nil, echo)
	require.NoError(t, err)

	err = b.Start(context.Background())
	assert.ErrorIs(t, err, api.meErr)
	assert.False(t, b.IsRunning())
}

func TestBot_StopEndsPolling(t *testing.T) {
	api := &fakeAPI{}
	b, err := newBot(testConfig(), api, nil, echo)
	require.NoError(t, err)

	ch := make(chan telego.Update)
	b.updates = func(context.Context) (<-chan telego.Update, error) { return ch, nil }

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()

	ch <- textUpdate(1, 42, "hello")
	require.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, "echo: hello", api.texts()[0])
}
