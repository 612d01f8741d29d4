package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const commandTimeout = 15 * time.Second

// Bot connects the command handler to a Discord gateway session.
type Bot struct {
	session *discordgo.Session
	handler *Handler
	log     *slog.Logger
	baseCtx context.Context
}

func NewBot(token string, handler *Handler, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, errors.New("discord bot token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	b := &Bot{session: session, handler: handler, log: logger, baseCtx: context.Background()}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

// Run keeps the gateway connection open until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.baseCtx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("discord close: %w", err)
	}
	b.log.Info("discord gateway closed")
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Member == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.baseCtx, commandTimeout)
	defer cancel()

	inv := Invocation{
		AuthorID:  m.Author.ID,
		RoleNames: b.roleNames(s, m.GuildID, m.Member.Roles),
		Content:   m.Content,
	}
	reply, ok := b.handler.Handle(ctx, inv)
	if !ok {
		return
	}
	if err := b.send(ctx, m.ChannelID, reply); err != nil {
		b.log.Warn("discord send failed", "channel", m.ChannelID, "err", err)
	}
}

func (b *Bot) send(ctx context.Context, channelID string, reply Reply) error {
	if reply.Embed != nil {
		_, err := b.session.ChannelMessageSendEmbed(channelID, reply.Embed, discordgo.WithContext(ctx))
		return err
	}
	for _, chunk := range SplitMessage(reply.Content) {
		if _, err := b.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// roleNames resolves member role ids through the state cache, falling back to the REST API.
func (b *Bot) roleNames(s *discordgo.Session, guildID string, roleIDs []string) []string {
	names := make([]string, 0, len(roleIDs))
	var fetched map[string]string
	for _, id := range roleIDs {
		if role, err := s.State.Role(guildID, id); err == nil {
			names = append(names, role.Name)
			continue
		}
		if fetched == nil {
			fetched = map[string]string{}
			roles, err := s.GuildRoles(guildID)
			if err != nil {
				b.log.Warn("discord role lookup failed", "guild", guildID, "err", err)
				continue
			}
			for _, r := range roles {
				fetched[r.ID] = r.Name
			}
		}
		if name, ok := fetched[id]; ok {
			names = append(names, name)
		}
	}
	return names
}
