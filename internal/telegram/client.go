// Package telegram provides a client for sending notifications via Telegram
// Bot API. It formats scored opportunities into human-readable alerts and
// handles delivery with retry logic for reliability.
//
// The client supports MarkdownV2 formatting and includes error handling for
// common Telegram API issues like rate limiting and network failures.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/voledgehq/voledge/internal/models"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Send delivers an alert listing the top scored opportunities
func (c *Client) Send(opps []models.ScoredOpportunity) error {
	msg := tgbotapi.NewMessage(c.chatID, formatMessage(opps))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats opportunities into a Telegram alert
func formatMessage(opps []models.ScoredOpportunity) string {
	var b strings.Builder
	b.WriteString("*Options Scan Results*\n\n")

	if len(opps) > 0 {
		dateStr := escapeMarkdownV2(opps[0].ScannedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "Scanned: %s\n\n", dateStr)
	}

	for i, opp := range opps {
		q := &opp.Signal.Quote
		contract := fmt.Sprintf("%s %s %s %.0f", q.Underlying, q.Expiry.Format("Jan02"), q.Type, q.Strike)

		fmt.Fprintf(&b, "%d\\. *%s*\n", i+1, escapeMarkdownV2(contract))
		fmt.Fprintf(&b, "   Score: *%s* \\| IV/HV: %s\n",
			escapeMarkdownV2(fmt.Sprintf("%.1f", opp.CompositeScore)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", opp.Signal.IVHVRatio)))
		fmt.Fprintf(&b, "   Mid: %s \\| Delta: %s \\| DTE: %d\n",
			escapeMarkdownV2(fmt.Sprintf("$%.2f", q.Mid())),
			escapeMarkdownV2(fmt.Sprintf("%.2f", opp.Signal.Pricing.Delta)),
			q.DTE())
		fmt.Fprintf(&b, "   POP: %s \\| Target close: %s\n\n",
			escapeMarkdownV2(fmt.Sprintf("%.0f%%", opp.ProbabilityOfProfit*100)),
			escapeMarkdownV2(fmt.Sprintf("$%.2f", opp.TargetClosePrice)))
	}

	if len(opps) == 0 {
		b.WriteString("No opportunities passed the filters\\.\n")
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
