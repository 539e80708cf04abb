package channel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"psi09relay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen     = 4000
	telegramTypingRefresh = 4 * time.Second
)

// telegramSender is the part of *tgbotapi.BotAPI a conversation handle needs.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs (empty = allow all)
	handler   domain.MessageHandler
	logger    *slog.Logger

	bot *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Handler   domain.MessageHandler
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		handler:   cfg.Handler,
		logger:    cfg.Logger.With("channel", "telegram"),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("logged in", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go t.handleMessage(ctx, update.Message)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	if !t.isAllowed(m.From.ID) {
		t.logger.Debug("ignoring message from user outside allow list", "user_id", m.From.ID)
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		return
	}

	msg := telegramInbound(m, t.bot.Self)
	if msg.IsSelfAuthored {
		return
	}
	conv := &telegramConversation{
		sender:    t.bot,
		chatID:    m.Chat.ID,
		messageID: m.MessageID,
		logger:    t.logger,
	}
	t.handler.Handle(ctx, msg, conv)
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// telegramInbound converts an update message. A mention is either an
// @username token addressed to the bot, which is stripped from the text, or
// a reply to one of the bot's messages.
func telegramInbound(m *tgbotapi.Message, self tgbotapi.User) domain.InboundMessage {
	conv := domain.Conversation{ID: strconv.FormatInt(m.Chat.ID, 10)}
	switch {
	case m.Chat.IsPrivate():
		conv.Kind = domain.DirectMessage
	case m.Chat.IsGroup() || m.Chat.IsSuperGroup():
		conv.Kind = domain.GroupConversation
		conv.Name = m.Chat.Title
	default:
		// channel posts
		conv.Kind = domain.ServerChannel
		conv.ServerID = conv.ID
		conv.ServerName = m.Chat.Title
	}

	text := m.Text
	mentioned := false
	if self.UserName != "" {
		pattern := telegramMentionPattern(self.UserName)
		if pattern.MatchString(text) {
			mentioned = true
			text = strings.TrimSpace(pattern.ReplaceAllString(text, "${1}"))
		}
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil && r.From.ID == self.ID {
		mentioned = true
	}

	return domain.InboundMessage{
		ID:                strconv.Itoa(m.MessageID),
		Platform:          "telegram",
		Text:              text,
		AuthorDisplayName: telegramDisplayName(m.From),
		IsSelfAuthored:    m.From != nil && m.From.ID == self.ID,
		MentionsBot:       mentioned,
		Conversation:      conv,
		ReceivedAt:        m.Time(),
	}
}

func telegramDisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.UserName
}

// telegramMentionPattern matches @username as a whole handle, so a longer
// handle such as @username_fan does not count. Usernames are
// case-insensitive and limited to [A-Za-z0-9_]; group 1 keeps the
// preceding character.
func telegramMentionPattern(username string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])@` + regexp.QuoteMeta(username) + `\b`)
}

// telegramConversation writes back into the chat of one message.
type telegramConversation struct {
	sender    telegramSender
	chatID    int64
	messageID int
	logger    *slog.Logger
}

func (c *telegramConversation) Reply(_ context.Context, text string) error {
	return sendChunks(text, telegramMaxMsgLen,
		func(chunk string) error {
			msg := tgbotapi.NewMessage(c.chatID, chunk)
			msg.ReplyToMessageID = c.messageID
			_, err := c.sender.Send(msg)
			return err
		},
		c.send, c.logger)
}

func (c *telegramConversation) Send(_ context.Context, text string) error {
	return sendChunks(text, telegramMaxMsgLen, c.send, c.send, c.logger)
}

func (c *telegramConversation) send(chunk string) error {
	_, err := c.sender.Send(tgbotapi.NewMessage(c.chatID, chunk))
	return err
}

func (c *telegramConversation) Typing(ctx context.Context) func() {
	return typingLoop(ctx, telegramTypingRefresh, func() {
		if _, err := c.sender.Request(tgbotapi.NewChatAction(c.chatID, tgbotapi.ChatTyping)); err != nil {
			c.logger.Debug("typing indicator failed", "err", err)
		}
	})
}
