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

// handleTradeOffer creates a pending trade from the caller's fraction to
// the buyer fraction and posts the offer with accept and decline buttons
// into the buyer's channel. Only fraction leaders (or admins) may offer.
func (b *Bot) handleTradeOffer(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	values := optionValues(options)
	buyerName := values.str("buyer")
	itemID := values.integer("item")
	quantity := values.integer("quantity")
	price := values.integer("price")

	seller, err := b.fractionForMember(ctx, interaction.Member)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, "You do not belong to any fraction.", true)
			return
		}
		b.logger.Error("fraction resolve failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}
	if !memberHasAdmin(interaction.Member) &&
		!b.memberHasRoleNamed(interaction.GuildID, interaction.Member, b.cfg.LeaderRoleName) {
		b.respond(interaction, "Only fraction leaders can offer trades.", true)
		return
	}

	buyer, err := b.store.GetFractionByName(ctx, buyerName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, fmt.Sprintf("No fraction named %q.", buyerName), true)
			return
		}
		b.logger.Error("fraction lookup failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}
	if buyer.ID == seller.ID {
		b.respond(interaction, "A fraction cannot trade with itself.", true)
		return
	}

	item, err := b.store.GetFractionItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, "No item with that id.", true)
			return
		}
		b.logger.Error("item lookup failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	tradeID, err := b.store.CreateTrade(ctx, storage.Trade{
		SellerID: seller.ID,
		BuyerID:  buyer.ID,
		ItemID:   itemID,
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidAmount) {
			b.respond(interaction, "Quantity and price must be positive.", true)
			return
		}
		b.respond(interaction, "Could not create the trade: "+err.Error(), true)
		return
	}

	id := strconv.FormatInt(tradeID, 10)
	offer := fmt.Sprintf("**%s** offers %dx **%s** for %d. Leaders of **%s**, respond below.",
		seller.Name, quantity, item.Name, price, buyer.Name)
	_, err = b.session.ChannelMessageSendComplex(buyer.ChannelID, &discordgo.MessageSend{
		Content: offer,
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Accept", Style: discordgo.SuccessButton, CustomID: "trade:accept:" + id},
			discordgo.Button{Label: "Decline", Style: discordgo.DangerButton, CustomID: "trade:decline:" + id},
		}}},
	})
	if err != nil {
		b.logger.Error("trade offer post failed", zap.Int64("trade_id", tradeID), zap.Error(err))
		b.respond(interaction, "The trade was recorded but the offer could not be posted.", true)
		return
	}

	b.audit.Log(ctx, interactionUserID(interaction), "trade_offered", "trade", id,
		fmt.Sprintf("%s -> %s: %dx %s for %d", seller.Name, buyer.Name, quantity, item.Name, price))
	b.respond(interaction, fmt.Sprintf("Trade #%s offered to **%s**.", id, buyer.Name), true)
}

// handleTradeResponse settles or declines a pending trade. The responder
// must be a leader of the buyer fraction; the database status guard makes
// sure a trade resolves exactly once regardless of racing clicks.
func (b *Bot) handleTradeResponse(ctx context.Context, interaction *discordgo.InteractionCreate, verb, idArg string) {
	tradeID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return
	}
	trade, err := b.store.GetTradeByID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(interaction, "This trade no longer exists.", true)
			return
		}
		b.logger.Error("trade lookup failed", zap.Error(err))
		b.respond(interaction, "Something went wrong. Please try again.", true)
		return
	}

	member := interaction.Member
	if !memberHasAdmin(member) {
		fraction, err := b.fractionForMember(ctx, member)
		if err != nil || fraction.ID != trade.BuyerID {
			b.respond(interaction, "Only the buyer fraction can answer this offer.", true)
			return
		}
		if !b.memberHasRoleNamed(interaction.GuildID, member, b.cfg.LeaderRoleName) {
			b.respond(interaction, "Only fraction leaders can answer trades.", true)
			return
		}
	}

	actorID := interactionUserID(interaction)
	switch verb {
	case "accept":
		settlement, err := b.store.SettleTrade(ctx, tradeID, actorID)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrAlreadyResolved):
				b.respond(interaction, "This trade was already resolved.", true)
			case errors.Is(err, storage.ErrInsufficientFunds):
				b.respond(interaction, "Your treasury cannot cover the price.", true)
			case errors.Is(err, storage.ErrNotFound):
				b.respond(interaction, "The offered item is no longer available.", true)
			default:
				b.logger.Error("trade settlement failed", zap.Int64("trade_id", tradeID), zap.Error(err))
				b.respond(interaction, "Something went wrong; nothing was exchanged.", true)
			}
			return
		}
		summary := fmt.Sprintf("Trade #%d accepted: %dx **%s** for %d. Buyer balance %d, seller balance %d.",
			tradeID, settlement.Trade.Quantity, settlement.ItemName, settlement.Trade.Price,
			settlement.BuyerBalance, settlement.SellerBalance)
		if err := b.updateComponentMessage(interaction, summary, []discordgo.MessageComponent{}); err != nil {
			b.logger.Warn("offer message update failed", zap.Error(err))
		}
	case "decline":
		if err := b.store.DeclineTrade(ctx, tradeID, actorID); err != nil {
			if errors.Is(err, storage.ErrAlreadyResolved) {
				b.respond(interaction, "This trade was already resolved.", true)
				return
			}
			b.logger.Error("trade decline failed", zap.Int64("trade_id", tradeID), zap.Error(err))
			b.respond(interaction, "Something went wrong. Please try again.", true)
			return
		}
		message := fmt.Sprintf("Trade #%d declined.", tradeID)
		if err := b.updateComponentMessage(interaction, message, []discordgo.MessageComponent{}); err != nil {
			b.logger.Warn("offer message update failed", zap.Error(err))
		}
	}
}
