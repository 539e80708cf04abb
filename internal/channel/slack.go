package channel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"psi09relay/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// slackPoster is the part of *slack.Client a conversation handle needs.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	handler  domain.MessageHandler
	logger   *slog.Logger

	client *slack.Client
	botUID string
	team   slackTeam

	mu    sync.Mutex
	names map[string]string // user and conversation display names
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Handler  domain.MessageHandler
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		handler:  cfg.Handler,
		logger:   cfg.Logger.With("channel", "slack"),
		names:    make(map[string]string),
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects via Socket Mode and relays messages until ctx is cancelled.
func (s *Slack) Start(ctx context.Context) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.client = api

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = auth.UserID
	s.team = slackTeam{ID: auth.TeamID, Name: auth.Team}
	s.logger.Info("logged in", "user", auth.User, "user_id", auth.UserID, "team", auth.Team)

	socketClient := socketmode.New(api)

	go s.consumeEvents(ctx, socketClient.Events, func(req socketmode.Request) {
		socketClient.Ack(req)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// consumeEvents acknowledges and dispatches Socket Mode events until ctx is
// cancelled. socketmode never closes its Events channel.
func (s *Slack) consumeEvents(ctx context.Context, events <-chan socketmode.Event, ack func(socketmode.Request)) {
	for {
		var evt socketmode.Event
		select {
		case <-ctx.Done():
			return
		case evt = <-events:
		}
		switch evt.Type {
		case socketmode.EventTypeEventsAPI:
			event, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			ack(*evt.Request)
			s.handleEventsAPI(ctx, event)
		case socketmode.EventTypeConnected:
			s.logger.Info("socket mode connected")
		default:
			// Unacknowledged requests make Slack drop the connection.
			if evt.Request != nil {
				ack(*evt.Request)
			}
		}
	}
}

// Stop is a no-op: the socket closes when Start's context is cancelled.
func (s *Slack) Stop() error { return nil }

func (s *Slack) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Edits, deletions and joins arrive as subtypes.
	if ev.SubType != "" || ev.User == "" || ev.User == s.botUID {
		return
	}
	go s.handleMessage(ctx, ev)
}

func (s *Slack) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	groupName := ""
	if ev.ChannelType == "mpim" {
		groupName = s.conversationName(ctx, ev.Channel)
	}
	msg := slackInbound(ev, s.botUID, s.team, groupName)
	msg.AuthorDisplayName = s.userName(ctx, ev.User)

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	conv := &slackConversation{
		poster:    s.client,
		channelID: ev.Channel,
		threadTS:  threadTS,
		logger:    s.logger,
	}
	s.handler.Handle(ctx, msg, conv)
}

func (s *Slack) cached(key string, fetch func() (string, error)) string {
	s.mu.Lock()
	name, ok := s.names[key]
	s.mu.Unlock()
	if ok {
		return name
	}
	name, err := fetch()
	if err != nil {
		s.logger.Debug("name lookup failed", "key", key, "err", err)
		return ""
	}
	s.mu.Lock()
	s.names[key] = name
	s.mu.Unlock()
	return name
}

func (s *Slack) userName(ctx context.Context, userID string) string {
	name := s.cached("user:"+userID, func() (string, error) {
		u, err := s.client.GetUserInfoContext(ctx, userID)
		if err != nil {
			return "", err
		}
		return slackDisplayName(u), nil
	})
	if name == "" {
		return userID
	}
	return name
}

func (s *Slack) conversationName(ctx context.Context, channelID string) string {
	return s.cached("conv:"+channelID, func() (string, error) {
		ch, err := s.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
		if err != nil {
			return "", err
		}
		return ch.Name, nil
	})
}

func slackDisplayName(u *slack.User) string {
	switch {
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.RealName != "":
		return u.RealName
	default:
		return u.Name
	}
}

var slackMentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// slackTeam is the workspace the bot is installed in.
type slackTeam struct {
	ID   string
	Name string
}

// slackInbound converts a message event. Mentions of the bot are detected
// and stripped from the text; mentions of other users are kept.
func slackInbound(ev *slackevents.MessageEvent, botUID string, team slackTeam, groupName string) domain.InboundMessage {
	conv := domain.Conversation{ID: ev.Channel}
	switch ev.ChannelType {
	case "im":
		conv.Kind = domain.DirectMessage
	case "mpim":
		conv.Kind = domain.GroupConversation
		conv.Name = groupName
	default:
		conv.Kind = domain.ServerChannel
		conv.ServerID = team.ID
		conv.ServerName = team.Name
	}

	mentioned := false
	text := slackMentionPattern.ReplaceAllStringFunc(ev.Text, func(tok string) string {
		if m := slackMentionPattern.FindStringSubmatch(tok); m[1] == botUID {
			mentioned = true
			return ""
		}
		return tok
	})
	if mentioned {
		text = strings.TrimSpace(text)
	}

	return domain.InboundMessage{
		ID:                ev.TimeStamp,
		Platform:          "slack",
		Text:              text,
		AuthorDisplayName: ev.User,
		IsSelfAuthored:    ev.User == botUID,
		MentionsBot:       mentioned,
		Conversation:      conv,
		ReceivedAt:        slackTime(ev.TimeStamp),
	}
}

// slackTime parses a message ts such as "1700000000.000100".
func slackTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now()
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}

// slackConversation writes back into the channel of one message. The
// referenced form is a thread reply.
type slackConversation struct {
	poster    slackPoster
	channelID string
	threadTS  string
	logger    *slog.Logger
}

func (c *slackConversation) Reply(ctx context.Context, text string) error {
	threaded := func(chunk string) error {
		_, _, err := c.poster.PostMessageContext(ctx, c.channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionTS(c.threadTS),
		)
		return err
	}
	return sendChunks(text, slackMaxMsgLen, threaded, threaded, c.logger)
}

func (c *slackConversation) Send(ctx context.Context, text string) error {
	post := func(chunk string) error { return c.post(ctx, chunk) }
	return sendChunks(text, slackMaxMsgLen, post, post, c.logger)
}

func (c *slackConversation) post(ctx context.Context, chunk string) error {
	_, _, err := c.poster.PostMessageContext(ctx, c.channelID, slack.MsgOptionText(chunk, false))
	return err
}

// Typing is a no-op: bots have no typing indicator over Socket Mode.
func (c *slackConversation) Typing(context.Context) func() { return func() {} }
