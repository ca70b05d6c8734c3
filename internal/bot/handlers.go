package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"levelsmith/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const leaderboardPageSize = 10

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()

	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling", "This command only works in a server.", b.cfg.EmbedColors.Error, nil), true)
		return
	}

	switch data.Name {
	case "rank":
		b.handleRank(ctx, session, interaction, data.Options)
	case "leaderboard":
		b.handleLeaderboard(ctx, session, interaction, data.Options)
	case "xp":
		b.handleXP(ctx, session, interaction, data.Options)
	case "multiplier":
		b.handleMultiplier(ctx, session, interaction, data.Options)
	case "levelconfig":
		b.handleLevelConfig(ctx, session, interaction, data.Options)
	case "levelroles":
		b.handleLevelRoles(ctx, session, interaction, data.Options)
	case "levelstats":
		b.handleStats(ctx, session, interaction)
	case "activity":
		b.handleActivity(ctx, session, interaction, data.Options)
	}
}

func (b *Bot) handleRank(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	userID := b.invokerID(interaction)
	for _, opt := range options {
		if opt.Name == "user" && opt.UserValue(session) != nil {
			userID = opt.UserValue(session).ID
		}
	}
	if userID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Rank", "No user in context.", b.cfg.EmbedColors.Error, nil), true)
		return
	}

	record := b.engine.GetUserLevel(ctx, interaction.GuildID, userID)
	if !record.Found {
		b.respondEmbed(session, interaction, b.commandEmbed("Rank", fmt.Sprintf("<@%s> has not earned any XP yet.", userID), b.cfg.EmbedColors.Warning, nil), true)
		return
	}

	rank := b.engine.Rank(ctx, interaction.GuildID, userID)
	rankValue := "unranked"
	if rank > 0 {
		rankValue = fmt.Sprintf("#%d", rank)
	}

	needed, earned, span := b.engine.Progress(ctx, interaction.GuildID, record)
	progressValue := "max level"
	if span > 0 {
		progressValue = fmt.Sprintf("%d / %d XP (%d to go)", earned, span, needed)
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: fmt.Sprintf("%d", record.Level), Inline: true},
		{Name: "XP", Value: fmt.Sprintf("%d", record.XP), Inline: true},
		{Name: "Rank", Value: rankValue, Inline: true},
		{Name: "Messages", Value: fmt.Sprintf("%d", record.Messages), Inline: true},
		{Name: "Next level", Value: progressValue, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Rank", fmt.Sprintf("<@%s>", userID), b.cfg.EmbedColors.Primary, fields), false)
}

func (b *Bot) handleLeaderboard(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	page := 1
	for _, opt := range options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * leaderboardPageSize
	records := b.engine.Leaderboard(ctx, interaction.GuildID, leaderboardPageSize, offset)
	if len(records) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Leaderboard", "Nothing here yet.", b.cfg.EmbedColors.Warning, nil), true)
		return
	}

	lines := make([]string, 0, len(records))
	for i, record := range records {
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> - level %d (%d XP)", offset+i+1, record.UserID, record.Level, record.XP))
	}
	title := fmt.Sprintf("Leaderboard - page %d", page)
	b.respondEmbed(session, interaction, b.commandEmbed(title, strings.Join(lines, "\n"), b.cfg.EmbedColors.Primary, nil), false)
}

func (b *Bot) handleXP(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("XP", "No action given.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()

	userID := ""
	amount := int64(-1)
	for _, opt := range options[1:] {
		switch opt.Name {
		case "user":
			if opt.UserValue(session) != nil {
				userID = opt.UserValue(session).ID
			}
		case "amount":
			amount = opt.IntValue()
		}
	}

	guildID := interaction.GuildID
	switch action {
	case "set":
		if userID == "" || amount < 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "set needs a user and a non-negative amount.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if !b.engine.SetXP(ctx, guildID, userID, amount) {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("XP", fmt.Sprintf("<@%s> now has %d XP.", userID, amount), b.cfg.EmbedColors.Primary, nil), true)
	case "add":
		if userID == "" || amount <= 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "add needs a user and a positive amount.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		result := b.engine.AddXP(ctx, guildID, userID, amount)
		if result == nil {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("XP", fmt.Sprintf("<@%s> gained %d XP, total %d (level %d).", userID, amount, result.XP, result.Level), b.cfg.EmbedColors.Primary, nil), true)
	case "remove":
		if userID == "" || amount <= 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "remove needs a user and a positive amount.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		record := b.engine.RemoveXP(ctx, guildID, userID, amount)
		b.respondEmbed(session, interaction, b.commandEmbed("XP", fmt.Sprintf("<@%s> now has %d XP (level %d).", userID, record.XP, record.Level), b.cfg.EmbedColors.Primary, nil), true)
	case "resetuser":
		if userID == "" {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "resetuser needs a user.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if !b.engine.ResetUser(ctx, guildID, userID) {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "Reset failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("XP", fmt.Sprintf("<@%s> was reset.", userID), b.cfg.EmbedColors.Warning, nil), true)
	case "resetguild":
		if !b.engine.ResetGuild(ctx, guildID) {
			b.respondEmbed(session, interaction, b.commandEmbed("XP", "Reset failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("XP", "All level records for this server were reset.", b.cfg.EmbedColors.Warning, nil), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("XP", "Unknown action.", b.cfg.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) handleMultiplier(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "No action given.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()

	roleID := ""
	value := 0.0
	for _, opt := range options[1:] {
		switch opt.Name {
		case "role":
			if opt.RoleValue(session, interaction.GuildID) != nil {
				roleID = opt.RoleValue(session, interaction.GuildID).ID
			}
		case "value":
			value = opt.FloatValue()
		}
	}

	switch action {
	case "set":
		if roleID == "" || value <= 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "set needs a role and a positive value.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if !b.engine.SetRoleMultiplier(ctx, interaction.GuildID, roleID, value) {
			b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", fmt.Sprintf("<@&%s> now multiplies XP by %.2f.", roleID, value), b.cfg.EmbedColors.Primary, nil), true)
	case "remove":
		if roleID == "" {
			b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "remove needs a role.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if !b.engine.RemoveRoleMultiplier(ctx, interaction.GuildID, roleID) {
			b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", fmt.Sprintf("<@&%s> no longer has a multiplier.", roleID), b.cfg.EmbedColors.Primary, nil), true)
	case "list":
		multipliers := b.engine.ListRoleMultipliers(ctx, interaction.GuildID)
		if len(multipliers) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "No role multipliers configured.", b.cfg.EmbedColors.Warning, nil), true)
			return
		}
		ids := make([]string, 0, len(multipliers))
		for id := range multipliers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("<@&%s> x%.2f", id, multipliers[id]))
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", strings.Join(lines, "\n"), b.cfg.EmbedColors.Primary, nil), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Multipliers", "Unknown action.", b.cfg.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) handleLevelConfig(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling config", "No action given.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()
	settings := b.engine.Settings(ctx, interaction.GuildID)

	switch action {
	case "view":
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling config", "Current settings", b.cfg.EmbedColors.Primary, b.settingsFields(settings)), true)
		return
	case "enable":
		settings.Enabled = true
	case "disable":
		settings.Enabled = false
	case "set":
		for _, opt := range options[1:] {
			switch opt.Name {
			case "xp_min":
				settings.XPMin = int(opt.IntValue())
			case "xp_max":
				settings.XPMax = int(opt.IntValue())
			case "cooldown_seconds":
				settings.CooldownSeconds = int(opt.IntValue())
			case "formula":
				settings.CurveFormula = opt.StringValue()
				settings.LevelCurve = nil
			case "max_level":
				settings.CurveMaxLevel = int(opt.IntValue())
				settings.LevelCurve = nil
			case "announce":
				settings.AnnounceLevelUp = opt.BoolValue()
			case "channel":
				if channel := opt.ChannelValue(session); channel != nil {
					settings.LevelUpChannel = channel.ID
				}
			case "voice_billing":
				settings.VoiceBilling = opt.StringValue()
			}
		}
		if settings.XPMin < 0 {
			settings.XPMin = 0
		}
		if settings.XPMax < settings.XPMin {
			settings.XPMax = settings.XPMin
		}
		if settings.CurveMaxLevel < 1 {
			settings.CurveMaxLevel = 1
		}
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling config", "Unknown action.", b.cfg.EmbedColors.Error, nil), true)
		return
	}

	if err := b.engine.UpdateSettings(ctx, settings); err != nil {
		b.logger.Warn("leveling config update failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling config", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Leveling config", "Settings updated", b.cfg.EmbedColors.Primary, b.settingsFields(settings)), true)
}

func (b *Bot) settingsFields(settings storage.LevelingSettings) []*discordgo.MessageEmbedField {
	channel := "not set"
	if settings.LevelUpChannel != "" {
		channel = "<#" + settings.LevelUpChannel + ">"
	}
	curveValue := settings.CurveFormula
	if len(settings.LevelCurve) > 0 {
		curveValue = fmt.Sprintf("custom (%d levels)", len(settings.LevelCurve)-1)
	}
	return []*discordgo.MessageEmbedField{
		{Name: "Enabled", Value: fmt.Sprintf("%t", settings.Enabled), Inline: true},
		{Name: "XP per message", Value: fmt.Sprintf("%d-%d", settings.XPMin, settings.XPMax), Inline: true},
		{Name: "Cooldown", Value: fmt.Sprintf("%ds", settings.CooldownSeconds), Inline: true},
		{Name: "Curve", Value: curveValue, Inline: true},
		{Name: "Max level", Value: fmt.Sprintf("%d", settings.CurveMaxLevel), Inline: true},
		{Name: "Voice billing", Value: settings.VoiceBilling, Inline: true},
		{Name: "Announce", Value: fmt.Sprintf("%t", settings.AnnounceLevelUp), Inline: true},
		{Name: "Channel", Value: channel, Inline: true},
	}
}

func (b *Bot) handleLevelRoles(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "No action given.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()

	level := 0
	roleID := ""
	for _, opt := range options[1:] {
		switch opt.Name {
		case "level":
			level = int(opt.IntValue())
		case "role":
			if opt.RoleValue(session, interaction.GuildID) != nil {
				roleID = opt.RoleValue(session, interaction.GuildID).ID
			}
		}
	}

	settings := b.engine.Settings(ctx, interaction.GuildID)
	switch action {
	case "add":
		if level < 1 || roleID == "" {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "add needs a level and a role.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if settings.LevelRoles == nil {
			settings.LevelRoles = make(map[int]string)
		}
		settings.LevelRoles[level] = roleID
		if err := b.engine.UpdateSettings(ctx, settings); err != nil {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", fmt.Sprintf("Level %d now grants <@&%s>.", level, roleID), b.cfg.EmbedColors.Primary, nil), true)
	case "remove":
		if level < 1 {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "remove needs a level.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		if _, ok := settings.LevelRoles[level]; !ok {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", fmt.Sprintf("Level %d has no role.", level), b.cfg.EmbedColors.Warning, nil), true)
			return
		}
		delete(settings.LevelRoles, level)
		if err := b.engine.UpdateSettings(ctx, settings); err != nil {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "Update failed.", b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", fmt.Sprintf("Level %d no longer grants a role.", level), b.cfg.EmbedColors.Primary, nil), true)
	case "list":
		if len(settings.LevelRoles) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "No level roles configured.", b.cfg.EmbedColors.Warning, nil), true)
			return
		}
		levels := make([]int, 0, len(settings.LevelRoles))
		for lvl := range settings.LevelRoles {
			levels = append(levels, lvl)
		}
		sort.Ints(levels)
		lines := make([]string, 0, len(levels))
		for _, lvl := range levels {
			lines = append(lines, fmt.Sprintf("Level %d: <@&%s>", lvl, settings.LevelRoles[lvl]))
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", strings.Join(lines, "\n"), b.cfg.EmbedColors.Primary, nil), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "Unknown action.", b.cfg.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) handleStats(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	stats := b.engine.Stats(ctx, interaction.GuildID)
	if stats.TotalUsers == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling stats", "No level records yet.", b.cfg.EmbedColors.Warning, nil), true)
		return
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Members tracked", Value: fmt.Sprintf("%d", stats.TotalUsers), Inline: true},
		{Name: "Total XP", Value: fmt.Sprintf("%d", stats.TotalXP), Inline: true},
		{Name: "Messages counted", Value: fmt.Sprintf("%d", stats.TotalMessages), Inline: true},
		{Name: "Average level", Value: fmt.Sprintf("%.1f", stats.AvgLevel), Inline: true},
		{Name: "Highest level", Value: fmt.Sprintf("%d", stats.MaxLevel), Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Leveling stats", "Server-wide totals", b.cfg.EmbedColors.Primary, fields), false)
}

func (b *Bot) handleActivity(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Activity", "No period given.", b.cfg.EmbedColors.Error, nil), true)
		return
	}
	period := options[0].StringValue()
	start := time.Now().Add(-24 * time.Hour)
	if period == "week" {
		start = time.Now().Add(-7 * 24 * time.Hour)
	}

	report, err := b.analytics.Report(ctx, interaction.GuildID, start)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Activity", "Report failed.", b.cfg.EmbedColors.Error, nil), true)
		return
	}

	events := make([]string, 0, len(report.ByEvent))
	for event := range report.ByEvent {
		events = append(events, event)
	}
	sort.Strings(events)
	fields := make([]*discordgo.MessageEmbedField, 0, len(events)+1)
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Total", Value: fmt.Sprintf("%d", report.Total), Inline: true})
	for _, event := range events {
		fields = append(fields, &discordgo.MessageEmbedField{Name: event, Value: fmt.Sprintf("%d", report.ByEvent[event]), Inline: true})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Activity", fmt.Sprintf("Events since %s", start.Format("2006-01-02 15:04")), b.cfg.EmbedColors.Primary, fields), true)
}

func (b *Bot) invokerID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}
