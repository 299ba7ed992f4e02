package bot

import (
	"context"
	"errors"
	"strings"

	"fractionbot/internal/permissions"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// onInteractionCreate is the single dispatch boundary: permission gate and
// usage audit for slash commands, custom-id routing for components. A
// panicking handler answers the user with a generic failure instead of
// taking the router down.
func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	_ = session
	ctx := context.Background()

	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("handler panicked", zap.Any("panic", recovered))
			b.respond(interaction, "Something went wrong. Please try again.", true)
		}
	}()

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.routeCommand(ctx, interaction)
	case discordgo.InteractionMessageComponent:
		b.routeComponent(ctx, interaction)
	}
}

func (b *Bot) routeCommand(ctx context.Context, interaction *discordgo.InteractionCreate) {
	data := interaction.ApplicationCommandData()
	name := data.Name
	actorID := interactionUserID(interaction)

	if !b.commandAllowed(interaction, name) {
		b.audit.Log(ctx, actorID, "permission_denied", "command", name, "")
		b.respond(interaction, "You are not allowed to use this command.", true)
		return
	}
	b.audit.Log(ctx, actorID, "command", "command", name, "")

	switch name {
	case "create-fraction":
		b.handleCreateFraction(ctx, interaction, data.Options)
	case "delete-fraction":
		b.handleDeleteFraction(ctx, interaction)
	case "give-money":
		b.handleMoney(ctx, interaction, data.Options, true)
	case "remove-money":
		b.handleMoney(ctx, interaction, data.Options, false)
	case "warn-fraction":
		b.handleWarnFraction(ctx, interaction, data.Options)
	case "take-item":
		b.handleTakeItem(ctx, interaction)
	case "spawn-fraction":
		b.handleSpawnFraction(ctx, interaction, data.Options)
	case "ticket-panel":
		b.handleTicketPanel(ctx, interaction)
	case "trade-offer":
		b.handleTradeOffer(ctx, interaction, data.Options)
	case "report":
		b.handleReport(ctx, interaction, data.Options)
	case "reload":
		b.handleReload(ctx, interaction)
	default:
		b.respond(interaction, "Unknown command.", true)
	}
}

// commandAllowed applies the JSON permission map. Administrators bypass
// it; otherwise the member needs one of the command's allowed roles.
func (b *Bot) commandAllowed(interaction *discordgo.InteractionCreate, command string) bool {
	member := interaction.Member
	if memberHasAdmin(member) {
		return true
	}
	perms, err := permissions.Load(b.cfg.PermissionsPath)
	if err != nil {
		b.logger.Error("permission map load failed", zap.Error(err))
		return false
	}
	var roles []string
	if member != nil {
		roles = member.Roles
	}
	return perms.Allows(command, roles)
}

func (b *Bot) routeComponent(ctx context.Context, interaction *discordgo.InteractionCreate) {
	customID := interaction.MessageComponentData().CustomID
	parts := strings.Split(customID, ":")
	action := parts[0]
	args := parts[1:]

	event := workflow.Event{
		Action:    action,
		Args:      args,
		Values:    interaction.MessageComponentData().Values,
		UserID:    interactionUserID(interaction),
		ChannelID: interaction.ChannelID,
		Data:      interaction,
	}

	switch action {
	case "fracdel":
		b.dispatchWorkflow(ctx, workflow.Key{Scope: event.UserID, Kind: "fraction-delete"}, event, interaction)
	case "takeitem":
		b.dispatchWorkflow(ctx, workflow.Key{Scope: event.UserID, Kind: "take-item"}, event, interaction)
	case "ticketclose":
		b.dispatchWorkflow(ctx, workflow.Key{Scope: event.ChannelID, Kind: "ticket-close"}, event, interaction)
	case "ticket":
		if len(args) == 0 {
			return
		}
		switch args[0] {
		case "create":
			b.handleTicketCreate(ctx, interaction)
		case "respond":
			b.handleTicketResponse(ctx, interaction)
		case "close":
			b.handleTicketCloseRequest(ctx, interaction)
		case "archive":
			b.handleTicketArchive(ctx, interaction, true)
		case "unarchive":
			b.handleTicketArchive(ctx, interaction, false)
		case "claim":
			if len(args) > 1 {
				b.handleRewardClaim(ctx, interaction, args[1])
			}
		}
	case "trade":
		if len(args) < 2 {
			return
		}
		b.handleTradeResponse(ctx, interaction, args[0], args[1])
	default:
		// Unrecognized identifiers are ignored.
	}
}

func (b *Bot) dispatchWorkflow(ctx context.Context, key workflow.Key, event workflow.Event, interaction *discordgo.InteractionCreate) {
	err := b.workflows.Dispatch(ctx, key, event)
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrNoSession):
		b.respond(interaction, "This prompt is no longer active.", true)
	case errors.Is(err, workflow.ErrWrongUser):
		b.respond(interaction, "This prompt belongs to someone else.", true)
	case errors.Is(err, workflow.ErrSessionBusy):
		b.respond(interaction, "Still processing your previous choice.", true)
	default:
		// The engine already released the session; the error hook told
		// the user.
		b.logger.Warn("workflow dispatch failed",
			zap.String("scope", key.Scope), zap.String("kind", key.Kind), zap.Error(err))
	}
}
