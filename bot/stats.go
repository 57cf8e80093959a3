package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/korjavin/quizbot/models"
	"github.com/korjavin/quizbot/quiz"
	"github.com/korjavin/quizbot/telegraph"
)

const (
	recentAnswersLimit = 5
	missedLimit        = 3
	statsPageTitle     = "Quiz statistics"
)

// handleStatCommand handles the /stat command
func (b *Bot) handleStatCommand(ctx context.Context, peer quiz.Peer) {
	stats, err := b.store.GetUserStats(ctx, peer.UserID)
	if err != nil {
		log.Errorf("Error getting user stats: %v", err)
		b.sendMessage(peer.ChatID, "Sorry, I couldn't retrieve your statistics. Please try again later.")
		return
	}

	if stats.Total() == 0 {
		b.sendMessage(peer.ChatID, "You haven't answered any questions yet. Press /play to start a quiz.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `📊 Your Statistics:

Total Questions Attempted: %d
Correct Answers: %d ✅
Incorrect Answers: %d ❌
Accuracy: %.1f%%`, stats.Total(), stats.Correct, stats.Incorrect, stats.Accuracy())

	recent, err := b.store.RecentAnswers(ctx, peer.UserID, recentAnswersLimit)
	if err != nil {
		log.Errorf("Error getting recent answers: %v", err)
	} else if len(recent) > 0 {
		r := models.StatsOf(recent)
		fmt.Fprintf(&sb, "\n\nLast %d answers: %d correct, %d incorrect (%.1f%%)", r.Total(), r.Correct, r.Incorrect, r.Accuracy())
	}

	missed, err := b.store.MostMissedQuestions(ctx, peer.UserID, missedLimit)
	if err != nil {
		log.Errorf("Error getting missed questions: %v", err)
	} else if len(missed) > 0 {
		sb.WriteString("\n\nMost Challenging Questions:\n")
		for i, m := range missed {
			fmt.Fprintf(&sb, "%d. %s (missed %d times)\n", i+1, truncate(m.Text, 50), m.Count)
		}
	}

	b.sendMessage(peer.ChatID, strings.TrimRight(sb.String(), "\n"))
}

// handleStatsCommand publishes everybody's recent results to Telegraph and sends the link
func (b *Bot) handleStatsCommand(ctx context.Context, peer quiz.Peer) {
	content, err := b.statsPageContent(ctx)
	if err != nil {
		log.Errorf("Error collecting statistics: %v", err)
		b.sendMessage(peer.ChatID, "Sorry, I couldn't retrieve the statistics. Please try again later.")
		return
	}

	if content == nil {
		b.sendMessage(peer.ChatID, "Nobody has answered any questions yet.")
		return
	}

	page, err := b.telegraph.CreatePage(ctx, statsPageTitle, content)
	if err != nil {
		log.Errorf("Error publishing statistics page: %v", err)
		b.sendMessage(peer.ChatID, "Sorry, I couldn't publish the statistics. Please try again later.")
		return
	}

	msg := tgbotapi.NewMessage(peer.ChatID, fmt.Sprintf(`<a href="%s">Statistics 👇</a>`, html.EscapeString(page.URL)))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.Errorf("Error sending statistics link: %v", err)
	}
}

// statsPageContent builds one paragraph per user from their last answers.
// It returns nil when no user has answered anything.
func (b *Bot) statsPageContent(ctx context.Context) ([]any, error) {
	users, err := b.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var blocks []any
	n := 0
	for _, u := range users {
		recent, err := b.store.RecentAnswers(ctx, u.ID, recentAnswersLimit)
		if err != nil {
			return nil, fmt.Errorf("recent answers of user %d: %w", u.ID, err)
		}
		if len(recent) == 0 {
			continue
		}

		n++
		s := models.StatsOf(recent)
		name := u.FullName
		if name == "" {
			name = "No name"
		}

		blocks = append(blocks, telegraph.Elem("p",
			telegraph.Elem("b", fmt.Sprintf("👤 %d. %s", n, name)), telegraph.Elem("br"),
			fmt.Sprintf("📝 Questions: %d", s.Total()), telegraph.Elem("br"),
			fmt.Sprintf("✅ Correct: %d", s.Correct), telegraph.Elem("br"),
			fmt.Sprintf("❌ Incorrect: %d", s.Incorrect), telegraph.Elem("br"),
			fmt.Sprintf("📈 Accuracy: %.2f%%", s.Accuracy()),
		))
	}

	if len(blocks) == 0 {
		return nil, nil
	}

	header := telegraph.Elem("p", telegraph.Elem("b",
		fmt.Sprintf("📊 Results of the last %d answers of every player", recentAnswersLimit)))
	return append([]any{header}, blocks...), nil
}

// truncate shortens text to limit runes
func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
