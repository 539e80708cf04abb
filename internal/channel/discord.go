package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"psi09relay/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen     = 2000
	discordTypingRefresh = 8 * time.Second
)

// Discord session modes.
const (
	DiscordModeBot  = "bot"
	DiscordModeUser = "user"
)

// discordSender is the part of *discordgo.Session a conversation handle needs.
type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Discord implements domain.Channel for Discord, either as an official bot
// or with a user session token.
type Discord struct {
	token   string
	mode    string
	guildID string
	handler domain.MessageHandler
	logger  *slog.Logger

	mu      sync.Mutex
	session *discordgo.Session
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	Mode    string // bot | user
	GuildID string // when set, only messages from this guild (and DMs) are relayed
	Handler domain.MessageHandler
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Mode == "" {
		cfg.Mode = DiscordModeBot
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:   cfg.Token,
		mode:    cfg.Mode,
		guildID: cfg.GuildID,
		handler: cfg.Handler,
		logger:  cfg.Logger.With("channel", "discord", "mode", cfg.Mode),
	}
}

func (d *Discord) Name() string { return "discord" }

// sessionToken returns the Authorization value for the configured mode.
func sessionToken(mode, token string) string {
	if mode == DiscordModeUser {
		return token
	}
	return "Bot " + token
}

// Start connects to Discord and relays messages until ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	session, err := discordgo.New(sessionToken(d.mode, d.token))
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("logged in", "user", r.User.Username, "id", r.User.ID, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.onMessage(ctx, s, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	<-ctx.Done()
	d.logger.Info("discord disconnecting")
	return d.Stop()
}

// Stop closes the gateway session. It is safe to call more than once.
func (d *Discord) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}

func (d *Discord) onMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || s.State.User == nil {
		return
	}
	botID := s.State.User.ID
	if m.Author.ID == botID {
		return
	}
	if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
		return
	}

	ch := d.lookupChannel(s, m.ChannelID)
	guildName := ""
	if m.GuildID != "" {
		guildName = d.lookupGuildName(s, m.GuildID)
	}

	msg := discordInbound(m.Message, botID, ch, guildName)
	conv := &discordConversation{
		sender:    s,
		channelID: m.ChannelID,
		messageID: m.ID,
		guildID:   m.GuildID,
		logger:    d.logger,
	}
	d.handler.Handle(ctx, msg, conv)
}

func (d *Discord) lookupChannel(s *discordgo.Session, id string) *discordgo.Channel {
	if ch, err := s.State.Channel(id); err == nil {
		return ch
	}
	ch, err := s.Channel(id)
	if err != nil {
		d.logger.Debug("channel lookup failed", "channel_id", id, "err", err)
		return nil
	}
	return ch
}

func (d *Discord) lookupGuildName(s *discordgo.Session, id string) string {
	if g, err := s.State.Guild(id); err == nil && g.Name != "" {
		return g.Name
	}
	g, err := s.Guild(id)
	if err != nil {
		d.logger.Debug("guild lookup failed", "guild_id", id, "err", err)
		return ""
	}
	return g.Name
}

// discordInbound converts a gateway message. ch may be nil when the channel
// could not be resolved; a guild-less message is then treated as a DM.
func discordInbound(m *discordgo.Message, botID string, ch *discordgo.Channel, guildName string) domain.InboundMessage {
	conv := domain.Conversation{ID: m.ChannelID}
	switch {
	case ch != nil && ch.Type == discordgo.ChannelTypeDM, ch == nil && m.GuildID == "":
		conv.Kind = domain.DirectMessage
	case ch != nil && ch.Type == discordgo.ChannelTypeGroupDM:
		conv.Kind = domain.GroupConversation
		conv.Name = ch.Name
	default:
		conv.Kind = domain.ServerChannel
		conv.ServerID = m.GuildID
		conv.ServerName = guildName
	}

	received := m.Timestamp
	if received.IsZero() {
		received = time.Now()
	}

	return domain.InboundMessage{
		ID:                m.ID,
		Platform:          "discord",
		Text:              m.Content,
		AuthorDisplayName: discordDisplayName(m),
		IsSelfAuthored:    m.Author != nil && m.Author.ID == botID,
		MentionsBot:       discordMentions(m, botID),
		Conversation:      conv,
		ReceivedAt:        received,
	}
}

// discordMentions reports whether the bot is in the mention list or its raw
// id appears anywhere in the content.
func discordMentions(m *discordgo.Message, botID string) bool {
	if botID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return strings.Contains(m.Content, botID)
}

func discordDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return ""
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// discordConversation writes back into the channel of one message.
type discordConversation struct {
	sender    discordSender
	channelID string
	messageID string
	guildID   string
	logger    *slog.Logger
}

func (c *discordConversation) Reply(_ context.Context, text string) error {
	ref := &discordgo.MessageReference{
		MessageID: c.messageID,
		ChannelID: c.channelID,
		GuildID:   c.guildID,
	}
	return sendChunks(text, discordMaxMsgLen,
		func(chunk string) error {
			_, err := c.sender.ChannelMessageSendReply(c.channelID, chunk, ref)
			return err
		},
		c.send, c.logger)
}

func (c *discordConversation) Send(_ context.Context, text string) error {
	return sendChunks(text, discordMaxMsgLen, c.send, c.send, c.logger)
}

func (c *discordConversation) send(chunk string) error {
	_, err := c.sender.ChannelMessageSend(c.channelID, chunk)
	return err
}

func (c *discordConversation) Typing(ctx context.Context) func() {
	return typingLoop(ctx, discordTypingRefresh, func() {
		if err := c.sender.ChannelTyping(c.channelID); err != nil {
			c.logger.Debug("typing indicator failed", "err", err)
		}
	})
}
