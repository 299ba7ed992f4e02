package bot

import (
	"context"
	"fmt"
	"time"

	"fractionbot/internal/analytics"
	"fractionbot/internal/config"
	"fractionbot/internal/modules/audit"
	"fractionbot/internal/storage"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	audit     *audit.Logger
	analytics *analytics.Service
	workflows *workflow.Registry
	session   *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsService,
		workflows: workflow.NewRegistry(logger),
		session:   session,
	}

	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			b.notifyAudit(ctx, entry)
		})
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
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

func (b *Bot) workflowTimeout() time.Duration {
	return time.Duration(b.cfg.Workflow.TimeoutSeconds) * time.Second
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	_ = ctx
	if b.cfg.AuditChannel == "" {
		return
	}
	actor := "system"
	if entry.ActorID != "" {
		actor = "<@" + entry.ActorID + ">"
	}
	message := fmt.Sprintf("%s | %s | %s %s", actor, entry.Action, entry.TargetKind, entry.TargetID)
	if entry.Details != "" {
		message += " | " + entry.Details
	}
	if _, err := b.session.ChannelMessageSend(b.cfg.AuditChannel, message); err != nil {
		b.logger.Error("audit channel send failed", zap.Error(err))
	}
}

func (b *Bot) respond(interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		b.logger.Error("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
	if err != nil {
		b.logger.Error("interaction respond failed", zap.Error(err))
	}
}

// respondComponents sends a non-ephemeral prompt carrying interactive
// components and returns the created message so a workflow session can
// strip the components later.
func (b *Bot) respondComponents(interaction *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) (*discordgo.Message, error) {
	err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
	if err != nil {
		return nil, err
	}
	return b.session.InteractionResponse(interaction.Interaction)
}

// updateComponentMessage answers a component interaction by rewriting the
// message it came from.
func (b *Bot) updateComponentMessage(interaction *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) error {
	return b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
}

// stripPrompt removes interactive components from a stored prompt message.
// Used by timeout and supersession hooks, which have no interaction to
// answer.
func (b *Bot) stripPrompt(channelID, messageID, note string) {
	if channelID == "" || messageID == "" {
		return
	}
	edit := &discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Components: []discordgo.MessageComponent{},
	}
	if note != "" {
		edit.Content = &note
	}
	if _, err := b.session.ChannelMessageEditComplex(edit); err != nil {
		b.logger.Warn("prompt cleanup failed",
			zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err))
	}
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

func memberHasAdmin(member *discordgo.Member) bool {
	return member != nil && member.Permissions&discordgo.PermissionAdministrator != 0
}

func memberHasRole(member *discordgo.Member, roleID string) bool {
	if member == nil {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func memberHasAnyRole(member *discordgo.Member, roleIDs []string) bool {
	for _, id := range roleIDs {
		if memberHasRole(member, id) {
			return true
		}
	}
	return false
}

// memberHasRoleNamed checks role membership by display name, used for the
// leadership gate where the role is configured by name.
func (b *Bot) memberHasRoleNamed(guildID string, member *discordgo.Member, name string) bool {
	if member == nil || name == "" {
		return false
	}
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = b.session.Guild(guildID)
	}
	if guild == nil {
		return false
	}
	for _, role := range guild.Roles {
		if role.Name != name {
			continue
		}
		if memberHasRole(member, role.ID) {
			return true
		}
	}
	return false
}

// fractionForMember resolves a member's fraction by matching their roles
// against the stored fraction role IDs.
func (b *Bot) fractionForMember(ctx context.Context, member *discordgo.Member) (storage.Fraction, error) {
	if member == nil {
		return storage.Fraction{}, storage.ErrNotFound
	}
	for _, roleID := range member.Roles {
		fraction, err := b.store.GetFractionByRole(ctx, roleID)
		if err == nil {
			return fraction, nil
		}
		if err != storage.ErrNotFound {
			return storage.Fraction{}, err
		}
	}
	return storage.Fraction{}, storage.ErrNotFound
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}
