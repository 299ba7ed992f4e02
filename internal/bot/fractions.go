package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"fractionbot/internal/config"
	"fractionbot/internal/storage"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleCreateFraction(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	values := optionValues(options)
	abbrev := values.str("abbrev")
	name := values.str("name")
	description := values.str("description")

	color, err := config.ParseHexColor(values.str("color"))
	if err != nil {
		b.respond(interaction, "Invalid color: expected 6 hex digits, e.g. 1f8b4c.", true)
		return
	}

	if _, err := b.store.GetFractionByName(ctx, name); err == nil {
		b.respond(interaction, fmt.Sprintf("Fraction %q already exists.", name), true)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		b.logger.Error("fraction lookup failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	guildID := interaction.GuildID
	role, err := b.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Color: &color})
	if err != nil {
		b.logger.Error("role create failed", zap.String("fraction", name), zap.Error(err))
		b.respond(interaction, "Could not create the fraction role.", true)
		return
	}

	channel, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: abbrev,
		Type: discordgo.ChannelTypeGuildText,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
			{ID: role.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
		},
	})
	if err != nil {
		b.logger.Error("channel create failed", zap.String("fraction", name), zap.Error(err))
		_ = b.session.GuildRoleDelete(guildID, role.ID)
		b.respond(interaction, "Could not create the fraction channel.", true)
		return
	}

	id, err := b.store.CreateFraction(ctx, storage.Fraction{
		Name:        name,
		Abbrev:      abbrev,
		Description: description,
		Color:       color,
		RoleID:      role.ID,
		ChannelID:   channel.ID,
	})
	if err != nil {
		b.logger.Error("fraction insert failed", zap.String("fraction", name), zap.Error(err))
		_ = b.session.GuildRoleDelete(guildID, role.ID)
		if _, deleteErr := b.session.ChannelDelete(channel.ID); deleteErr != nil {
			b.logger.Warn("channel rollback failed", zap.Error(deleteErr))
		}
		b.respond(interaction, "Could not save the fraction.", true)
		return
	}

	b.audit.Log(ctx, interactionUserID(interaction), "fraction_created", "fraction", strconv.FormatInt(id, 10), name)
	b.respondEmbed(interaction, b.commandEmbed("Fraction created", name, b.cfg.EmbedColors.Action, []*discordgo.MessageEmbedField{
		{Name: "Role", Value: "<@&" + role.ID + ">", Inline: true},
		{Name: "Channel", Value: "<#" + channel.ID + ">", Inline: true},
	}), false)
}

func (b *Bot) handleDeleteFraction(ctx context.Context, interaction *discordgo.InteractionCreate) {
	fractions, err := b.store.ListFractions(ctx)
	if err != nil {
		b.logger.Error("fraction list failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}
	if len(fractions) == 0 {
		b.respond(interaction, "There are no fractions to delete.", true)
		return
	}

	options := make([]discordgo.SelectMenuOption, 0, len(fractions))
	for _, fraction := range fractions {
		options = append(options, discordgo.SelectMenuOption{
			Label:       fraction.Name,
			Value:       strconv.FormatInt(fraction.ID, 10),
			Description: fraction.Abbrev,
		})
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: "fracdel:select", Placeholder: "Select a fraction", Options: options},
		}},
	}

	message, err := b.respondComponents(interaction, "Which fraction should be deleted?", components)
	if err != nil {
		b.logger.Error("deletion prompt failed", zap.Error(err))
		return
	}

	userID := interactionUserID(interaction)
	key := workflow.Key{Scope: userID, Kind: "fraction-delete"}
	session := b.workflows.Start(key, userID, b.workflowTimeout(), b.deleteSelectStep, workflow.Hooks{
		OnExpire: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Fraction deletion timed out.")
		},
		OnCancel: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Fraction deletion superseded by a newer request.")
		},
		OnError: func(s *workflow.Session, err error) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Fraction deletion failed. Nothing was changed.")
		},
	})
	session.Set("prompt_channel", interaction.ChannelID)
	session.Set("prompt_message", message.ID)
}

func (b *Bot) deleteSelectStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 || event.Args[0] != "select" || len(event.Values) == 0 {
		return workflow.Result{Next: b.deleteSelectStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	id, err := strconv.ParseInt(event.Values[0], 10, 64)
	if err != nil {
		return workflow.Result{}, err
	}
	fraction, err := b.store.GetFractionByID(ctx, id)
	if err != nil {
		return workflow.Result{}, err
	}
	session.Set("fraction_id", event.Values[0])

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: "fracdel:confirm"},
			discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: "fracdel:cancel"},
		}},
	}
	content := fmt.Sprintf("Delete fraction **%s**? Its role, channel and record will be removed after a backup.", fraction.Name)
	if err := b.updateComponentMessage(interaction, content, components); err != nil {
		return workflow.Result{}, err
	}
	return workflow.Result{Next: b.deleteConfirmStep}, nil
}

func (b *Bot) deleteConfirmStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 {
		return workflow.Result{Next: b.deleteConfirmStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	switch event.Args[0] {
	case "cancel":
		return workflow.Result{}, b.updateComponentMessage(interaction, "Fraction deletion cancelled.", []discordgo.MessageComponent{})
	case "confirm":
	default:
		return workflow.Result{Next: b.deleteConfirmStep}, nil
	}

	id, err := strconv.ParseInt(session.Get("fraction_id"), 10, 64)
	if err != nil {
		return workflow.Result{}, err
	}
	fraction, err := b.store.GetFractionByID(ctx, id)
	if err != nil {
		return workflow.Result{}, err
	}

	// The backup must land in the audit channel before anything is
	// destroyed; an unreachable target aborts the whole flow.
	if err := b.backupFraction(ctx, fraction); err != nil {
		b.logger.Error("fraction backup failed", zap.String("fraction", fraction.Name), zap.Error(err))
		return workflow.Result{}, b.updateComponentMessage(interaction,
			"Backup failed; the fraction was NOT deleted.", []discordgo.MessageComponent{})
	}

	actorID := event.UserID
	if fraction.RoleID != "" {
		if err := b.session.GuildRoleDelete(interaction.GuildID, fraction.RoleID); err != nil {
			b.logger.Warn("role delete failed", zap.String("role_id", fraction.RoleID), zap.Error(err))
			b.audit.Log(ctx, actorID, "role_delete_failed", "fraction", session.Get("fraction_id"), fraction.RoleID)
		}
	}
	if fraction.ChannelID != "" {
		if _, err := b.session.ChannelDelete(fraction.ChannelID); err != nil {
			b.logger.Warn("channel delete failed", zap.String("channel_id", fraction.ChannelID), zap.Error(err))
			b.audit.Log(ctx, actorID, "channel_delete_failed", "fraction", session.Get("fraction_id"), fraction.ChannelID)
		}
	}

	if err := b.store.DeleteFraction(ctx, id); err != nil {
		return workflow.Result{}, err
	}
	b.audit.Log(ctx, actorID, "fraction_deleted", "fraction", session.Get("fraction_id"), fraction.Name)
	return workflow.Result{}, b.updateComponentMessage(interaction,
		fmt.Sprintf("Fraction **%s** deleted.", fraction.Name), []discordgo.MessageComponent{})
}

type fractionBackup struct {
	Fraction storage.Fraction `json:"fraction"`
	Items    []storage.Item   `json:"items"`
}

func (b *Bot) backupFraction(ctx context.Context, fraction storage.Fraction) error {
	if b.cfg.AuditChannel == "" {
		return errors.New("no audit channel configured for backups")
	}
	items, err := b.store.ListFractionItems(ctx, fraction.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fractionBackup{Fraction: fraction, Items: items}, "", "  ")
	if err != nil {
		return err
	}
	_, err = b.session.ChannelFileSendWithMessage(b.cfg.AuditChannel,
		fmt.Sprintf("Backup before deletion of %s", fraction.Name),
		fmt.Sprintf("fraction-%s.json", fraction.Abbrev), bytes.NewReader(data))
	return err
}

type optionSet map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionValues(options []*discordgo.ApplicationCommandInteractionDataOption) optionSet {
	set := make(optionSet, len(options))
	for _, opt := range options {
		set[opt.Name] = opt
	}
	return set
}

func (o optionSet) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o optionSet) integer(name string) int64 {
	if opt, ok := o[name]; ok {
		return opt.IntValue()
	}
	return 0
}
