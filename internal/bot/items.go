package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fractionbot/internal/storage"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// handleTakeItem starts the three-step removal wizard: pick a fraction,
// pick one of its inventory sections, pick the item.
func (b *Bot) handleTakeItem(ctx context.Context, interaction *discordgo.InteractionCreate) {
	fractions, err := b.store.ListFractions(ctx)
	if err != nil {
		b.logger.Error("fraction list failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}
	if len(fractions) == 0 {
		b.respond(interaction, "There are no fractions.", true)
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

	message, err := b.respondComponents(interaction, "Take an item: pick the fraction.", selectRow("takeitem:fraction", "Select a fraction", options))
	if err != nil {
		b.logger.Error("take-item prompt failed", zap.Error(err))
		return
	}

	userID := interactionUserID(interaction)
	key := workflow.Key{Scope: userID, Kind: "take-item"}
	session := b.workflows.Start(key, userID, b.workflowTimeout(), b.takeFractionStep, workflow.Hooks{
		OnExpire: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Item removal timed out.")
		},
		OnCancel: func(s *workflow.Session) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Item removal superseded by a newer request.")
		},
		OnError: func(s *workflow.Session, err error) {
			b.stripPrompt(s.Get("prompt_channel"), s.Get("prompt_message"), "Item removal failed. Nothing was changed.")
		},
	})
	session.Set("prompt_channel", interaction.ChannelID)
	session.Set("prompt_message", message.ID)
}

func (b *Bot) takeFractionStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 || event.Args[0] != "fraction" || len(event.Values) == 0 {
		return workflow.Result{Next: b.takeFractionStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	fractionID, err := strconv.ParseInt(event.Values[0], 10, 64)
	if err != nil {
		return workflow.Result{}, err
	}
	sections, err := b.store.ListFractionSections(ctx, fractionID)
	if err != nil {
		return workflow.Result{}, err
	}
	if len(sections) == 0 {
		return workflow.Result{}, b.updateComponentMessage(interaction,
			"That fraction has no inventory.", []discordgo.MessageComponent{})
	}
	session.Set("fraction_id", event.Values[0])

	options := make([]discordgo.SelectMenuOption, 0, len(sections))
	for _, section := range sections {
		options = append(options, discordgo.SelectMenuOption{Label: section, Value: section})
	}
	if err := b.updateComponentMessage(interaction, "Pick the inventory section.",
		selectRow("takeitem:section", "Select a section", options)); err != nil {
		return workflow.Result{}, err
	}
	return workflow.Result{Next: b.takeSectionStep}, nil
}

func (b *Bot) takeSectionStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 || event.Args[0] != "section" || len(event.Values) == 0 {
		return workflow.Result{Next: b.takeSectionStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	fractionID, err := strconv.ParseInt(session.Get("fraction_id"), 10, 64)
	if err != nil {
		return workflow.Result{}, err
	}
	section := event.Values[0]
	items, err := b.store.ListSectionItems(ctx, fractionID, section)
	if err != nil {
		return workflow.Result{}, err
	}
	if len(items) == 0 {
		return workflow.Result{}, b.updateComponentMessage(interaction,
			"That section is empty.", []discordgo.MessageComponent{})
	}

	options := make([]discordgo.SelectMenuOption, 0, len(items))
	for _, item := range items {
		label := fmt.Sprintf("%s x%d", item.Name, item.Quantity)
		if item.Unique {
			label = item.Name
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       label,
			Value:       strconv.FormatInt(item.ID, 10),
			Description: item.Mods,
		})
	}
	if err := b.updateComponentMessage(interaction, "Pick the item to remove.",
		selectRow("takeitem:item", "Select an item", options)); err != nil {
		return workflow.Result{}, err
	}
	return workflow.Result{Next: b.takeItemStep}, nil
}

func (b *Bot) takeItemStep(ctx context.Context, session *workflow.Session, event workflow.Event) (workflow.Result, error) {
	if len(event.Args) == 0 || event.Args[0] != "item" || len(event.Values) == 0 {
		return workflow.Result{Next: b.takeItemStep}, nil
	}
	interaction := event.Data.(*discordgo.InteractionCreate)

	itemID, err := strconv.ParseInt(event.Values[0], 10, 64)
	if err != nil {
		return workflow.Result{}, err
	}
	item, err := b.store.GetFractionItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return workflow.Result{}, b.updateComponentMessage(interaction,
				"That item is already gone.", []discordgo.MessageComponent{})
		}
		return workflow.Result{}, err
	}
	if err := b.store.DeleteFractionItem(ctx, itemID); err != nil {
		return workflow.Result{}, err
	}

	b.audit.Log(ctx, event.UserID, "item_taken", "item", event.Values[0],
		fmt.Sprintf("%s x%d from fraction %d", item.Name, item.Quantity, item.FractionID))
	return workflow.Result{}, b.updateComponentMessage(interaction,
		fmt.Sprintf("Removed **%s** from the inventory.", item.Name), []discordgo.MessageComponent{})
}

func (b *Bot) handleSpawnFraction(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	values := optionValues(options)
	name := values.str("fraction")

	fraction, err := b.store.GetFractionByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, fmt.Sprintf("No fraction named %q.", name), true)
			return
		}
		b.logger.Error("fraction lookup failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	items, err := b.store.ListFractionItems(ctx, fraction.ID)
	if err != nil {
		b.logger.Error("inventory list failed", zap.Int64("fraction_id", fraction.ID), zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	var fields []*discordgo.MessageEmbedField
	section := ""
	var lines []string
	flush := func() {
		if section == "" {
			return
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  section,
			Value: strings.Join(lines, "\n"),
		})
		lines = nil
	}
	for _, item := range items {
		if item.Section != section {
			flush()
			section = item.Section
		}
		line := fmt.Sprintf("`%d` %s x%d", item.ID, item.Name, item.Quantity)
		if item.Unique {
			line = fmt.Sprintf("`%d` %s (unique)", item.ID, item.Name)
		}
		if item.Mods != "" {
			line += " | " + item.Mods
		}
		lines = append(lines, line)
	}
	flush()

	description := fmt.Sprintf("Treasury: %d | Warnings: %d/%d", fraction.Money, fraction.Warns, b.cfg.WarnLimit)
	if len(fields) == 0 {
		description += "\nThe inventory is empty."
	}
	b.respondEmbed(interaction, b.commandEmbed("Inventory: "+fraction.Name, description,
		fraction.Color, fields), false)
}

func selectRow(customID, placeholder string, options []discordgo.SelectMenuOption) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: customID, Placeholder: placeholder, Options: options},
		}},
	}
}
