package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fractionbot/internal/config"
	"fractionbot/internal/storage"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// handleTicketPanel posts the category picker that members open tickets
// from. It goes to the configured panel channel, or the current one when
// none is set.
func (b *Bot) handleTicketPanel(ctx context.Context, interaction *discordgo.InteractionCreate) {
	categories := b.cfg.Tickets.Categories
	if len(categories) == 0 {
		b.respond(interaction, "No ticket categories are configured.", true)
		return
	}

	options := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, category := range categories {
		options = append(options, discordgo.SelectMenuOption{
			Label: category.Label,
			Value: category.ID,
		})
	}

	channelID := b.cfg.Tickets.PanelChannel
	if channelID == "" {
		channelID = interaction.ChannelID
	}
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.commandEmbed("Support",
			"Pick a category to open a ticket.", b.cfg.EmbedColors.Action, nil)},
		Components: selectRow("ticket:create", "Open a ticket", options),
	})
	if err != nil {
		b.logger.Error("ticket panel send failed", zap.String("channel_id", channelID), zap.Error(err))
		b.respond(interaction, "Could not post the ticket panel.", true)
		return
	}
	b.respond(interaction, "Ticket panel posted.", true)
}

func (b *Bot) handleTicketCreate(ctx context.Context, interaction *discordgo.InteractionCreate) {
	values := interaction.MessageComponentData().Values
	if len(values) == 0 {
		return
	}
	category, ok := b.cfg.Tickets.Category(values[0])
	if !ok {
		b.respond(interaction, "That ticket category no longer exists.", true)
		return
	}

	ownerID := interactionUserID(interaction)
	ownerName := "member"
	if interaction.Member != nil && interaction.Member.User != nil {
		ownerName = interaction.Member.User.Username
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: interaction.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: ownerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel},
	}
	for _, roleID := range category.StaffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel,
		})
	}

	channel, err := b.session.GuildChannelCreateComplex(interaction.GuildID, discordgo.GuildChannelCreateData{
		Name:                 fmt.Sprintf("%s-%s", category.ID, strings.ToLower(ownerName)),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             b.cfg.Tickets.LiveCategory,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		b.logger.Error("ticket channel create failed", zap.String("category", category.ID), zap.Error(err))
		b.respond(interaction, "Could not open the ticket channel.", true)
		return
	}

	err = b.store.CreateTicket(ctx, storage.Ticket{
		ChannelID:  channel.ID,
		OwnerID:    ownerID,
		OwnerName:  ownerName,
		CategoryID: category.ID,
	})
	if err != nil {
		b.logger.Error("ticket insert failed", zap.String("channel_id", channel.ID), zap.Error(err))
		if _, deleteErr := b.session.ChannelDelete(channel.ID); deleteErr != nil {
			b.logger.Warn("ticket channel rollback failed", zap.Error(deleteErr))
		}
		b.respond(interaction, "Could not open the ticket.", true)
		return
	}

	components, err := b.ticketComponents(ctx, category, channel.ID)
	if err != nil {
		b.logger.Error("ticket menu build failed", zap.Error(err))
	}
	prompt := category.Prompt
	if prompt == "" {
		prompt = "A staff member will be with you shortly."
	}
	_, err = b.session.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Content: "<@" + ownerID + ">",
		Embeds: []*discordgo.MessageEmbed{b.commandEmbed(category.Label, prompt,
			b.cfg.EmbedColors.Action, nil)},
		Components: components,
	})
	if err != nil {
		b.logger.Error("ticket prompt send failed", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	b.audit.Log(ctx, ownerID, "ticket_opened", "ticket", channel.ID, category.ID)
	b.respond(interaction, "Your ticket is ready: <#"+channel.ID+">", true)
}

// ticketComponents builds the staff controls for a ticket channel: the
// response menu with spent one-shot options filtered out, plus close and
// archive buttons.
func (b *Bot) ticketComponents(ctx context.Context, category config.TicketCategory, channelID string) ([]discordgo.MessageComponent, error) {
	used, err := b.store.ListUsedResponses(ctx, channelID)
	if err != nil {
		return nil, err
	}
	usedSet := make(map[string]struct{}, len(used))
	for _, id := range used {
		usedSet[id] = struct{}{}
	}

	var options []discordgo.SelectMenuOption
	for _, response := range category.Responses {
		if _, spent := usedSet[response.ID]; spent && !response.Repeatable {
			continue
		}
		options = append(options, discordgo.SelectMenuOption{Label: response.Label, Value: response.ID})
	}

	buttons := discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Close", Style: discordgo.DangerButton, CustomID: "ticket:close"},
		discordgo.Button{Label: "Archive", Style: discordgo.SecondaryButton, CustomID: "ticket:archive"},
	}}

	if len(options) == 0 {
		return []discordgo.MessageComponent{buttons}, nil
	}
	components := selectRow("ticket:respond", "Send a prepared response", options)
	return append(components, buttons), nil
}

func (b *Bot) handleTicketResponse(ctx context.Context, interaction *discordgo.InteractionCreate) {
	values := interaction.MessageComponentData().Values
	if len(values) == 0 {
		return
	}
	ticket, err := b.store.GetTicket(ctx, interaction.ChannelID)
	if err != nil {
		b.respond(interaction, "This channel is not a ticket.", true)
		return
	}
	category, ok := b.cfg.Tickets.Category(ticket.CategoryID)
	if !ok {
		b.respond(interaction, "This ticket's category no longer exists.", true)
		return
	}
	response, ok := category.Response(values[0])
	if !ok {
		b.respond(interaction, "That response no longer exists.", true)
		return
	}
	if len(response.AllowedRoles) > 0 &&
		!memberHasAdmin(interaction.Member) &&
		!memberHasAnyRole(interaction.Member, response.AllowedRoles) {
		b.respond(interaction, "You are not allowed to send this response.", true)
		return
	}

	// The option is only consumed once its content actually reached the
	// channel; a failed delivery leaves it selectable.
	if err := b.sendTicketResponse(ctx, interaction.ChannelID, response); err != nil {
		b.logger.Error("ticket response send failed", zap.String("response", response.ID), zap.Error(err))
		b.respond(interaction, "Could not deliver the response. Please try again.", true)
		return
	}
	if err := b.store.MarkResponseUsed(ctx, interaction.ChannelID, response.ID); err != nil {
		b.logger.Error("response use tracking failed", zap.Error(err))
	}

	// Refresh the menu on the control message so a spent one-shot option
	// disappears immediately.
	components, err := b.ticketComponents(ctx, category, interaction.ChannelID)
	if err == nil {
		content := ""
		if interaction.Message != nil {
			content = interaction.Message.Content
		}
		if err := b.updateComponentMessage(interaction, content, components); err != nil {
			b.logger.Warn("ticket menu refresh failed", zap.Error(err))
		}
	}

	b.audit.Log(ctx, interactionUserID(interaction), "ticket_response", "ticket", interaction.ChannelID, response.ID)
}

func (b *Bot) sendTicketResponse(ctx context.Context, channelID string, response config.TicketResponse) error {
	var components []discordgo.MessageComponent
	if response.Reward > 0 {
		claimed, err := b.store.IsRewardClaimed(ctx, channelID, response.ID)
		if err != nil {
			return err
		}
		if !claimed {
			components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    fmt.Sprintf("Claim reward (%d)", response.Reward),
					Style:    discordgo.SuccessButton,
					CustomID: "ticket:claim:" + response.ID,
				},
			}}}
		}
	}

	imagePath := response.ImagePath
	if imagePath == "" && response.ImageDir != "" {
		imagePath = randomImage(response.ImageDir)
	}

	message := &discordgo.MessageSend{Content: response.Content, Components: components}
	if imagePath != "" {
		file, err := os.Open(imagePath)
		if err != nil {
			b.logger.Warn("response image missing", zap.String("path", imagePath), zap.Error(err))
		} else {
			defer file.Close()
			message.Files = []*discordgo.File{{Name: filepath.Base(imagePath), Reader: file}}
		}
	}
	_, err := b.session.ChannelMessageSendComplex(channelID, message)
	return err
}

func randomImage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			candidates = append(candidates, filepath.Join(dir, entry.Name()))
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}

// handleRewardClaim credits a ticket response's reward to the ticket
// owner's fraction. The claim row is inserted before the money moves, so
// double clicks cannot pay twice.
func (b *Bot) handleRewardClaim(ctx context.Context, interaction *discordgo.InteractionCreate, responseID string) {
	ticket, err := b.store.GetTicket(ctx, interaction.ChannelID)
	if err != nil {
		b.respond(interaction, "This channel is not a ticket.", true)
		return
	}
	category, ok := b.cfg.Tickets.Category(ticket.CategoryID)
	if !ok {
		b.respond(interaction, "This ticket's category no longer exists.", true)
		return
	}
	response, ok := category.Response(responseID)
	if !ok || response.Reward <= 0 {
		b.respond(interaction, "There is no reward to claim here.", true)
		return
	}
	allowedRoles := response.AllowedRoles
	if len(allowedRoles) == 0 {
		allowedRoles = category.StaffRoles
	}
	if !memberHasAdmin(interaction.Member) && !memberHasAnyRole(interaction.Member, allowedRoles) {
		b.respond(interaction, "You are not allowed to hand out this reward.", true)
		return
	}

	owner, err := b.session.GuildMember(interaction.GuildID, ticket.OwnerID)
	if err != nil {
		b.respond(interaction, "The ticket owner is no longer on the server.", true)
		return
	}
	fraction, err := b.fractionForMember(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, "The ticket owner does not belong to any fraction.", true)
			return
		}
		b.logger.Error("fraction resolve failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	actorID := interactionUserID(interaction)
	balance, err := b.store.ClaimReward(ctx, interaction.ChannelID, responseID, actorID, fraction.ID, response.Reward)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyClaimed):
			b.respond(interaction, "This reward was already claimed.", true)
		case errors.Is(err, storage.ErrNotFound):
			b.respond(interaction, "The owner's fraction no longer exists.", true)
		default:
			b.logger.Error("reward claim failed", zap.Error(err))
			b.respond(interaction, "Something went wrong. Please try again.", true)
		}
		return
	}

	b.audit.Log(ctx, actorID, "reward_claimed", "ticket", interaction.ChannelID,
		fmt.Sprintf("%s +%d for %s", responseID, response.Reward, fraction.Name))
	if err := b.updateComponentMessage(interaction,
		fmt.Sprintf("Reward of %d credited to **%s** (balance %d).", response.Reward, fraction.Name, balance),
		[]discordgo.MessageComponent{}); err != nil {
		b.logger.Warn("claim button strip failed", zap.Error(err))
	}
}

func (b *Bot) handleTicketCloseRequest(ctx context.Context, interaction *discordgo.InteractionCreate) {
	ticket, err := b.store.GetTicket(ctx, interaction.ChannelID)
	if err != nil {
		b.respond(interaction, "This channel is not a ticket.", true)
		return
	}
	userID := interactionUserID(interaction)
	if userID != ticket.OwnerID && !memberHasAdmin(interaction.Member) {
		category, ok := b.cfg.Tickets.Category(ticket.CategoryID)
		if !ok || !memberHasAnyRole(interaction.Member, category.StaffRoles) {
			b.respond(interaction, "Only the ticket owner or staff can close this ticket.", true)
			return
		}
	}

	components := []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Close ticket", Style: discordgo.DangerButton, CustomID: "ticketclose:confirm"},
		discordgo.Button{Label: "Keep it open", Style: discordgo.SecondaryButton, CustomID: "ticketclose:cancel"},
	}}}
	message, err := b.respondComponents(interaction, "Close this ticket? The channel will be deleted.", components)
	if err != nil {
		b.logger.Error("close prompt failed", zap.Error(err))
		return
	}

	key := workflow.Key{Scope: interaction.ChannelID, Kind: "ticket-close"}
	session := b.workflows.Start(key, userID, b.workflowTimeout(), b.closeConfirmStep, workflow.Hooks{
		OnExpire: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Close request timed out; the ticket stays open.")
		},
		OnCancel: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Close request superseded.")
		},
		OnError: func(s *workflow.Session, err error) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Closing failed; the ticket stays open.")
		},
	})
	session.Set("prompt_channel", interaction.ChannelID)
	session.Set("prompt_message", message.ID)
}

func (b *Bot) closeConfirmStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 {
		return workflow.Result{Next: b.closeConfirmStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	switch event.Args[0] {
	case "cancel":
		return workflow.Result{}, b.updateComponentMessage(interaction, "The ticket stays open.", []discordgo.MessageComponent{})
	case "confirm":
	default:
		return workflow.Result{Next: b.closeConfirmStep}, nil
	}

	grace := time.Duration(b.cfg.Workflow.CloseGraceSeconds) * time.Second
	content := "Closing this ticket."
	if grace > 0 {
		content = fmt.Sprintf("Closing this ticket in %d seconds.", b.cfg.Workflow.CloseGraceSeconds)
	}
	if err := b.updateComponentMessage(interaction, content, []discordgo.MessageComponent{}); err != nil {
		return workflow.Result{}, err
	}

	channelID := interaction.ChannelID
	actorID := event.UserID
	time.AfterFunc(grace, func() {
		ctx := context.Background()
		if _, err := b.session.ChannelDelete(channelID); err != nil {
			b.logger.Error("ticket channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
		if err := b.store.DeleteTicket(ctx, channelID); err != nil {
			b.logger.Error("ticket record delete failed", zap.String("channel_id", channelID), zap.Error(err))
		}
		b.audit.Log(ctx, actorID, "ticket_closed", "ticket", channelID, "")
	})
	return workflow.Result{}, nil
}

func (b *Bot) handleTicketArchive(ctx context.Context, interaction *discordgo.InteractionCreate, archive bool) {
	ticket, err := b.store.GetTicket(ctx, interaction.ChannelID)
	if err != nil {
		b.respond(interaction, "This channel is not a ticket.", true)
		return
	}
	category, ok := b.cfg.Tickets.Category(ticket.CategoryID)
	if !ok {
		b.respond(interaction, "This ticket's category no longer exists.", true)
		return
	}
	if !memberHasAdmin(interaction.Member) && !memberHasAnyRole(interaction.Member, category.StaffRoles) {
		b.respond(interaction, "Only staff can archive tickets.", true)
		return
	}
	if ticket.Archived == archive {
		state := "archived"
		if !archive {
			state = "live"
		}
		b.respond(interaction, "This ticket is already "+state+".", true)
		return
	}

	parentID := b.cfg.Tickets.ArchiveCategory
	ownerOverwrite := &discordgo.PermissionOverwrite{
		ID: ticket.OwnerID, Type: discordgo.PermissionOverwriteTypeMember, Deny: discordgo.PermissionViewChannel,
	}
	if !archive {
		parentID = b.cfg.Tickets.LiveCategory
		ownerOverwrite = &discordgo.PermissionOverwrite{
			ID: ticket.OwnerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel,
		}
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: interaction.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		ownerOverwrite,
	}
	for _, roleID := range category.StaffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel,
		})
	}

	_, err = b.session.ChannelEditComplex(interaction.ChannelID, &discordgo.ChannelEdit{
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		b.logger.Error("ticket move failed", zap.String("channel_id", interaction.ChannelID), zap.Error(err))
		b.respond(interaction, "Could not move the ticket channel.", true)
		return
	}
	if err := b.store.SetTicketArchived(ctx, interaction.ChannelID, archive); err != nil {
		b.logger.Error("ticket archive flag failed", zap.String("channel_id", interaction.ChannelID), zap.Error(err))
	}

	action := "ticket_archived"
	reply := "Ticket archived."
	if !archive {
		action = "ticket_unarchived"
		reply = "Ticket restored."
	}
	b.audit.Log(ctx, interactionUserID(interaction), action, "ticket", interaction.ChannelID, "")
	b.respond(interaction, reply, true)

	if archive {
		_, err := b.session.ChannelMessageSendComplex(interaction.ChannelID, &discordgo.MessageSend{
			Content: "This ticket is archived.",
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Restore", Style: discordgo.SecondaryButton, CustomID: "ticket:unarchive"},
			}}},
		})
		if err != nil {
			b.logger.Warn("archive notice failed", zap.Error(err))
		}
	}
}
