package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleReport(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	period := optionValues(options).str("period")
	window := 24 * time.Hour
	if period == "week" {
		window = 7 * 24 * time.Hour
	}

	report, err := b.analytics.Report(ctx, time.Now().Add(-window))
	if err != nil {
		b.logger.Error("report build failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	actions := make([]string, 0, len(report.ByAction))
	for action := range report.ByAction {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	var lines []string
	for _, action := range actions {
		lines = append(lines, fmt.Sprintf("%s: %d", action, report.ByAction[action]))
	}
	description := fmt.Sprintf("%d entries in the last %s.", report.Total, period)
	if len(lines) > 0 {
		description += "\n" + strings.Join(lines, "\n")
	}

	b.respondEmbed(interaction, b.commandEmbed("Activity report", description,
		b.cfg.EmbedColors.Action, nil), true)
}

func (b *Bot) handleReload(ctx context.Context, interaction *discordgo.InteractionCreate) {
	if err := b.registerCommands(); err != nil {
		b.logger.Error("command reload failed", zap.Error(err))
		b.respond(interaction, "Command reload failed.", true)
		return
	}
	b.audit.Log(ctx, interactionUserID(interaction), "commands_reloaded", "command", "all", "")
	b.respond(interaction, "Commands re-registered.", true)
}
