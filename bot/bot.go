package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/korjavin/quizbot/config"
	"github.com/korjavin/quizbot/database"
	"github.com/korjavin/quizbot/models"
	"github.com/korjavin/quizbot/quiz"
	"github.com/korjavin/quizbot/telegraph"
)

const (
	cmdStart  = "start"
	cmdPlay   = "play"
	cmdCancel = "cancel"
	cmdStat   = "stat"
	cmdStats  = "stats"
	cmdHelp   = "help"

	menuPlay  = "📝 Play"
	menuStat  = "📈 My statistics"
	menuStats = "📊 All statistics"
)

const helpText = `Commands:
/play - Start a quiz
/cancel - Stop the current quiz
/stat - View your statistics
/stats - Statistics of all players
/help - Show this message`

// telegramAPI is the part of tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot represents the Telegram bot
type Bot struct {
	api       telegramAPI
	store     database.Store
	engine    *quiz.Engine
	telegraph *telegraph.Client

	queueIdle time.Duration
}

// New creates a new bot instance on top of an opened store
func New(cfg *config.Config, store database.Store) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	// Set bot debugging mode
	botAPI.Debug = cfg.Debug || os.Getenv("DEBUG") == "true"
	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	return newBot(botAPI, store, telegraph.NewClient(cfg.TelegraphToken), cfg.MaxQuestions), nil
}

func newBot(api telegramAPI, store database.Store, tg *telegraph.Client, maxQuestions int) *Bot {
	b := &Bot{
		api:       api,
		store:     store,
		telegraph: tg,
		queueIdle: queueIdleTime,
	}
	b.engine = quiz.NewEngine(store, store, b, quiz.NewMemoryStore(), maxQuestions)
	return b
}

// Start listens for updates until ctx is cancelled. Updates of different
// users are handled in parallel, the updates of one user in arrival order.
// Updates already received are still handled after ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Starting bot polling...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	handleCtx := context.WithoutCancel(ctx)
	d := newDispatcher(func(update tgbotapi.Update) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Recovered from panic while handling update %d: %v", update.UpdateID, r)
			}
		}()
		b.handleUpdate(handleCtx, update)
	}, b.queueIdle)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping bot polling...")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			d.dispatch(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		log.Debugf("Ignoring callback query from %d", update.CallbackQuery.From.ID)
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	peer := quiz.Peer{UserID: message.From.ID, ChatID: message.Chat.ID}
	log.Printf("Received message from %s (ID: %d): %s", message.From.UserName, peer.UserID, message.Text)

	if message.Text == "" {
		b.sendMessage(peer.ChatID, "Please answer with text or use the buttons.")
		return
	}

	switch command(message.Text) {
	case cmdStart:
		b.handleStartCommand(ctx, message)
	case cmdPlay:
		b.engine.StartSession(ctx, peer)
	case cmdCancel:
		b.engine.Cancel(ctx, peer)
	case cmdStat:
		b.handleStatCommand(ctx, peer)
	case cmdStats:
		b.handleStatsCommand(ctx, peer)
	case cmdHelp:
		b.sendMessage(peer.ChatID, helpText)
	default:
		b.engine.HandleText(ctx, peer, message.Text)
	}
}

// command returns the command name of text, treating menu buttons as commands
func command(text string) string {
	switch text {
	case menuPlay:
		return cmdPlay
	case menuStat:
		return cmdStat
	case menuStats:
		return cmdStats
	}

	if !strings.HasPrefix(text, "/") {
		return ""
	}

	name := strings.Fields(text)[0][1:]
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// handleStartCommand handles the /start command
func (b *Bot) handleStartCommand(ctx context.Context, message *tgbotapi.Message) {
	user := models.User{
		ID:       message.From.ID,
		FullName: strings.TrimSpace(message.From.FirstName + " " + message.From.LastName),
		Username: message.From.UserName,
	}
	if err := b.store.SaveUser(ctx, user); err != nil {
		log.Errorf("Error saving user %d: %v", user.ID, err)
	}

	name := user.FullName
	if name == "" {
		name = user.Username
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf(`Hello, %s!

Press /play to take a quiz or choose one of the buttons below.

%s`, name, helpText))
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuPlay)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuStat),
			tgbotapi.NewKeyboardButton(menuStats),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		log.Errorf("Error sending welcome message: %v", err)
	}
}

// sendMessage sends a plain text message
func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Errorf("Error sending message: %v", err)
	}
}
