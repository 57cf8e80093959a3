package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korjavin/quizbot/database"
	"github.com/korjavin/quizbot/models"
	"github.com/korjavin/quizbot/quiz"
	"github.com/korjavin/quizbot/telegraph"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAPI) lastTo(chatID int64) tgbotapi.MessageConfig {
	var last tgbotapi.MessageConfig
	for _, m := range f.messages() {
		if m.ChatID == chatID {
			last = m
		}
	}
	return last
}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	msgs := f.messages()
	if len(msgs) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return msgs[len(msgs)-1]
}

func newTestBot(t *testing.T, telegraphURL string) (*Bot, *fakeAPI, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "quiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InsertQuestions(context.Background(), []models.Question{
		{Text: "2 * 4 = ?", Options: []string{"8", "9", "10", "11"}, CorrectAnswer: "8", Category: "Math"},
		{Text: "2 - 4 = ?", Options: []string{"-2", "3", "0", "1"}, CorrectAnswer: "-2", Category: "Math"},
		{Text: "2x * 4 = 0", Options: []string{"0", "9", "10", "11"}, CorrectAnswer: "0", Category: "Math"},
		{Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris", Category: "Geography"},
	}))

	api := newFakeAPI()
	return newBot(api, db, telegraph.NewClient("token", telegraph.WithBaseURL(telegraphURL)), 5), api, db
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Alice", LastName: "Smith", UserName: "alice"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
}

func (b *Bot) say(userID int64, texts ...string) {
	for _, text := range texts {
		b.handleMessage(context.Background(), textMessage(userID, text))
	}
}

func TestCommand(t *testing.T) {
	tests := map[string]string{
		"/play":           cmdPlay,
		"/start payload":  cmdStart,
		"/Stat@quiz_bot":  cmdStat,
		menuPlay:          cmdPlay,
		menuStat:          cmdStat,
		menuStats:         cmdStats,
		"Math":            "",
		"":                "",
		"2 * 4 = ? /play": "",
	}
	for text, want := range tests {
		assert.Equal(t, want, command(text), text)
	}
}

func TestMakeKeyboard(t *testing.T) {
	kb := makeKeyboard([]string{"a", "b", "c", "d", "e"}, 2)

	require.Len(t, kb.Keyboard, 3)
	assert.Len(t, kb.Keyboard[0], 2)
	assert.Len(t, kb.Keyboard[2], 1)
	assert.Equal(t, "e", kb.Keyboard[2][0].Text)
	assert.True(t, kb.ResizeKeyboard)
}

func TestSendPrompt(t *testing.T) {
	b, api, _ := newTestBot(t, "")
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, 1, quiz.Prompt{Text: "pick", Options: []string{"Yes", "No"}}))
	kb, ok := api.last().ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "Yes", kb.Keyboard[0][0].Text)
	assert.Equal(t, "No", kb.Keyboard[0][1].Text)

	require.NoError(t, b.Send(ctx, 1, quiz.Prompt{Text: "done", RemoveKeyboard: true}))
	_, ok = api.last().ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	assert.True(t, ok)

	require.NoError(t, b.Send(ctx, 1, quiz.Prompt{Text: "plain"}))
	assert.Nil(t, api.last().ReplyMarkup)
	assert.Equal(t, int64(1), api.last().ChatID)
}

func TestStartSavesUser(t *testing.T) {
	b, api, db := newTestBot(t, "")

	b.say(42, "/start")

	users, err := db.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.User{{ID: 42, FullName: "Alice Smith", Username: "alice"}}, users)
	assert.Contains(t, api.last().Text, "Hello, Alice Smith!")
	_, ok := api.last().ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, ok)
}

func TestQuizFlow(t *testing.T) {
	b, api, db := newTestBot(t, "")

	b.say(42, menuPlay)
	assert.Equal(t, "Do you want to take a quiz?", api.last().Text)

	b.say(42, quiz.LabelYes)
	kb := api.last().ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.Equal(t, "Geography", kb.Keyboard[0][0].Text)
	assert.Equal(t, "Math", kb.Keyboard[0][1].Text)

	b.say(42, "Math")
	assert.Equal(t, "Question 1/3\n\n2 * 4 = ?", api.last().Text)

	b.say(42, "9", "-2", "0")
	assert.Equal(t, "🏁 Quiz finished!\nCorrect answers: 2/3", api.last().Text)

	stats, err := db.GetUserStats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{Correct: 2, Incorrect: 1}, stats)

	b.say(42, "hello")
	assert.Equal(t, "Press /play to start a quiz.", api.last().Text)
}

func TestCancelCommand(t *testing.T) {
	b, api, _ := newTestBot(t, "")

	b.say(42, "/play", quiz.LabelYes, "Math", "/cancel")
	assert.Equal(t, "Quiz cancelled. Press /play to start again.", api.last().Text)

	b.say(42, "8")
	assert.Equal(t, "Press /play to start a quiz.", api.last().Text)
}

func TestNonTextMessage(t *testing.T) {
	b, api, _ := newTestBot(t, "")

	b.say(42, "")
	assert.Equal(t, "Please answer with text or use the buttons.", api.last().Text)
}

func TestStatCommand(t *testing.T) {
	b, api, _ := newTestBot(t, "")

	b.say(42, "/stat")
	assert.Contains(t, api.last().Text, "haven't answered")

	b.say(42, "/play", quiz.LabelYes, "Math", "9", "-2", "0")
	b.say(42, "/stat")

	text := api.last().Text
	assert.Contains(t, text, "Total Questions Attempted: 3")
	assert.Contains(t, text, "Correct Answers: 2")
	assert.Contains(t, text, "Accuracy: 66.7%")
	assert.Contains(t, text, "Last 3 answers: 2 correct, 1 incorrect")
	assert.Contains(t, text, "1. 2 * 4 = ? (missed 1 times)")
}

func TestStatsCommand(t *testing.T) {
	var mu sync.Mutex
	var published []any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		mu.Lock()
		published = params["content"].([]any)
		mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"url":"https://telegra.ph/Quiz-statistics"}}`))
	}))
	defer srv.Close()

	b, api, _ := newTestBot(t, srv.URL)

	b.say(42, "/stats")
	assert.Equal(t, "Nobody has answered any questions yet.", api.last().Text)

	b.say(42, "/start", "/play", quiz.LabelYes, "Math", "8", "-2", "1")
	b.say(7, "/start")
	b.say(7, "/stats")

	last := api.last()
	assert.Equal(t, tgbotapi.ModeHTML, last.ParseMode)
	assert.Equal(t, `<a href="https://telegra.ph/Quiz-statistics">Statistics 👇</a>`, last.Text)

	mu.Lock()
	defer mu.Unlock()
	// Header plus one block: user 7 has no answers
	require.Len(t, published, 2)
	raw, err := json.Marshal(published[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Alice Smith")
	assert.Contains(t, string(raw), "✅ Correct: 2")
}

func TestStatsCommandPublishFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b, api, _ := newTestBot(t, srv.URL)
	b.say(42, "/start", "/play", quiz.LabelYes, "Math", "8")
	b.say(42, "/stats")

	assert.Equal(t, "Sorry, I couldn't publish the statistics. Please try again later.", api.last().Text)
}

func TestStartStopsOnCancel(t *testing.T) {
	b, api, _ := newTestBot(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: textMessage(42, "/play")}

	require.Eventually(t, func() bool {
		return api.last().Text == "Do you want to take a quiz?"
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
}

func runBot(t *testing.T, b *Bot) (cancel func()) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Start did not return after cancel")
		}
	}
}

func TestStartKeepsEachUserInOrder(t *testing.T) {
	b, api, db := newTestBot(t, "")
	cancel := runBot(t, b)
	defer cancel()

	// A burst like the one getUpdates returns after downtime, two users interleaved
	burst := [][2]any{
		{int64(42), "/play"}, {int64(7), "/play"},
		{int64(42), quiz.LabelYes}, {int64(7), quiz.LabelYes},
		{int64(42), "Math"}, {int64(7), "Math"},
		{int64(42), "8"}, {int64(7), "9"},
		{int64(42), "-2"}, {int64(7), "-2"},
		{int64(42), "0"}, {int64(7), "1"},
	}
	for i, u := range burst {
		api.updates <- tgbotapi.Update{UpdateID: i + 1, Message: textMessage(u[0].(int64), u[1].(string))}
	}

	require.Eventually(t, func() bool {
		return api.lastTo(42).Text == "🏁 Quiz finished!\nCorrect answers: 3/3" &&
			api.lastTo(7).Text == "🏁 Quiz finished!\nCorrect answers: 1/3"
	}, 2*time.Second, 10*time.Millisecond)

	stats, err := db.GetUserStats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{Correct: 3}, stats)
}

func TestStartFinishesReceivedUpdatesOnCancel(t *testing.T) {
	b, api, db := newTestBot(t, "")
	cancel := runBot(t, b)

	for i, text := range []string{"/play", quiz.LabelYes, "Math", "8", "-2", "0"} {
		api.updates <- tgbotapi.Update{UpdateID: i + 1, Message: textMessage(42, text)}
	}
	require.Eventually(t, func() bool { return len(api.updates) == 0 }, time.Second, time.Millisecond)
	cancel()

	stats, err := db.GetUserStats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{Correct: 3}, stats)
	assert.Equal(t, "🏁 Quiz finished!\nCorrect answers: 3/3", api.lastTo(42).Text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmno", 10))
	assert.Equal(t, "ääääääü...", truncate("ääääääüüüüüü", 10))
}
