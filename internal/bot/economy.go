package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"fractionbot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleMoney(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption, credit bool) {
	values := optionValues(options)
	name := values.str("fraction")
	amount := values.integer("amount")

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

	balance, err := b.store.UpdateFractionMoney(ctx, fraction.ID, amount, credit)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidAmount):
			b.respond(interaction, "Amount must be positive.", true)
		case errors.Is(err, storage.ErrInsufficientFunds):
			b.respond(interaction, fmt.Sprintf("%s only has %d on hand.", fraction.Name, fraction.Money), true)
		default:
			b.logger.Error("treasury update failed", zap.Int64("fraction_id", fraction.ID), zap.Error(err))
			b.respond(interaction, "Something went wrong. Please try again.", true)
		}
		return
	}

	action := "money_removed"
	verb := "Removed"
	if credit {
		action = "money_given"
		verb = "Added"
	}
	b.audit.Log(ctx, interactionUserID(interaction), action, "fraction",
		strconv.FormatInt(fraction.ID, 10), strconv.FormatInt(amount, 10))
	b.respondEmbed(interaction, b.commandEmbed("Treasury updated",
		fmt.Sprintf("%s %d for **%s**.", verb, amount, fraction.Name),
		b.cfg.EmbedColors.Action, []*discordgo.MessageEmbedField{
			{Name: "Balance", Value: strconv.FormatInt(balance, 10), Inline: true},
		}), false)
}

func (b *Bot) handleWarnFraction(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	values := optionValues(options)
	name := values.str("fraction")
	warns := int(values.integer("warns"))

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

	if err := b.store.SetFractionWarns(ctx, fraction.ID, warns, b.cfg.WarnLimit); err != nil {
		if errors.Is(err, storage.ErrWarnLimit) {
			b.respond(interaction, fmt.Sprintf("Warnings must be between 0 and %d.", b.cfg.WarnLimit), true)
			return
		}
		b.logger.Error("warn update failed", zap.Int64("fraction_id", fraction.ID), zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	b.audit.Log(ctx, interactionUserID(interaction), "fraction_warned", "fraction",
		strconv.FormatInt(fraction.ID, 10), strconv.Itoa(warns))
	b.respondEmbed(interaction, b.commandEmbed("Warnings updated",
		fmt.Sprintf("**%s** now has %d/%d warnings.", fraction.Name, warns, b.cfg.WarnLimit),
		b.cfg.EmbedColors.Warning, nil), false)
}
