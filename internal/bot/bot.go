package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"levelsmith/internal/analytics"
	"levelsmith/internal/audit"
	"levelsmith/internal/config"
	"levelsmith/internal/leveling"
	"levelsmith/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	engine    *leveling.Engine
	audit     *audit.Logger
	analytics *analytics.Service
	session   *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, engine *leveling.Engine, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		engine:    engine,
		audit:     auditLogger,
		analytics: analyticsService,
		session:   session,
	}

	engine.SetNotifier(b)
	if b.audit != nil && cfg.ActivityToChat {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			b.echoActivity(ctx, entry)
		})
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startDailySummary()

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	_ = session
	b.engine.ProcessMessage(context.Background(), msg)
}

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	_ = session
	if event.GuildID == "" || event.UserID == "" {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}

	ctx := context.Background()
	guildID := event.GuildID
	userID := event.UserID

	oldChannel := ""
	if event.BeforeUpdate != nil {
		oldChannel = event.BeforeUpdate.ChannelID
	}

	switch {
	case oldChannel == "" && event.ChannelID != "":
		b.engine.HandleVoiceJoin(ctx, guildID, userID)
	case event.ChannelID == "" && oldChannel != "":
		var roles []string
		if event.Member != nil {
			roles = event.Member.Roles
		}
		b.engine.HandleVoiceLeave(ctx, guildID, userID, roles)
		return
	}

	// The gateway has no per-packet speaking events; treat an unmuted,
	// undeafened member as speaking.
	audible := !event.SelfMute && !event.Mute && !event.SelfDeaf && !event.Deaf
	b.engine.UpdateSpeaking(guildID, userID, audible)
}

// AnnounceLevelUp implements leveling.Notifier. The configured announce
// channel wins; the channel the message arrived in is the fallback.
func (b *Bot) AnnounceLevelUp(ctx context.Context, guildID, channelID, fallbackChannelID, userID string, level int) {
	_ = ctx
	_ = guildID
	target := channelID
	if target == "" {
		target = fallbackChannelID
	}
	if target == "" {
		return
	}
	_, _ = b.session.ChannelMessageSendEmbed(target, b.levelUpEmbed(userID, level))
}

func (b *Bot) DirectLevelUp(ctx context.Context, userID string, level int) {
	_ = ctx
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return
	}
	_, _ = b.session.ChannelMessageSendEmbed(channel.ID, b.levelUpEmbed(userID, level))
}

func (b *Bot) GrantRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	_ = ctx
	return b.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithAuditLogReason(reason))
}

func (b *Bot) echoActivity(ctx context.Context, entry storage.AuditLog) {
	settings := b.engine.Settings(ctx, entry.GuildID)
	if settings.LevelUpChannel == "" {
		return
	}
	userValue := "system"
	if entry.UserID != "" {
		userValue = "<@" + entry.UserID + ">"
	}
	embed := &discordgo.MessageEmbed{
		Title:     "Leveling activity",
		Color:     b.cfg.EmbedColors.Primary,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Event", Value: entry.Event, Inline: true},
			{Name: "User", Value: userValue, Inline: true},
			{Name: "Details", Value: entry.Details, Inline: false},
		},
	}
	_, _ = b.session.ChannelMessageSendEmbed(settings.LevelUpChannel, embed)
}

func (b *Bot) levelUpEmbed(userID string, level int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Level up!",
		Description: fmt.Sprintf("<@%s> reached level **%d**", userID, level),
		Color:       b.cfg.EmbedColors.Primary,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func (b *Bot) startDailySummary() {
	if !b.cfg.DailySummary {
		return
	}
	go func() {
		time.Sleep(30 * time.Second)
		b.sendDailySummary()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			b.sendDailySummary()
		}
	}()
}

func (b *Bot) sendDailySummary() {
	if b.session == nil || b.session.State == nil {
		return
	}
	ctx := context.Background()
	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		settings := b.engine.Settings(ctx, guild.ID)
		if !settings.Enabled || settings.LevelUpChannel == "" {
			continue
		}
		records := b.engine.Leaderboard(ctx, guild.ID, 5, 0)
		if len(records) == 0 {
			continue
		}
		lines := make([]string, 0, len(records))
		for i, record := range records {
			lines = append(lines, fmt.Sprintf("**%d.** <@%s> - level %d (%d XP)", i+1, record.UserID, record.Level, record.XP))
		}
		embed := &discordgo.MessageEmbed{
			Title:       "Daily leaderboard",
			Description: strings.Join(lines, "\n"),
			Color:       b.cfg.EmbedColors.Primary,
			Timestamp:   time.Now().Format(time.RFC3339),
		}
		_, _ = b.session.ChannelMessageSendEmbed(settings.LevelUpChannel, embed)
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
