package bot

import "github.com/bwmarrin/discordgo"

var adminPermission = int64(discordgo.PermissionAdministrator)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "create-fraction",
			Description: "Provision a fraction with its role and channel",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "abbrev", Description: "Short tag, e.g. LSPD", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Full fraction name", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Short description", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "color", Description: "6-digit hex color, e.g. 1f8b4c", Required: true},
			},
		},
		{
			Name:        "delete-fraction",
			Description: "Delete a fraction after backup and confirmation",
		},
		{
			Name:        "give-money",
			Description: "Credit a fraction treasury",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "fraction", Description: "Fraction name", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Amount to add", Required: true},
			},
		},
		{
			Name:        "remove-money",
			Description: "Debit a fraction treasury",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "fraction", Description: "Fraction name", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Amount to remove", Required: true},
			},
		},
		{
			Name:        "warn-fraction",
			Description: "Set a fraction's warning count",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "fraction", Description: "Fraction name", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "warns", Description: "New warning count", Required: true},
			},
		},
		{
			Name:        "take-item",
			Description: "Remove an item from a fraction inventory",
		},
		{
			Name:                     "spawn-fraction",
			Description:              "List a fraction's inventory",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "fraction", Description: "Fraction name", Required: true},
			},
		},
		{
			Name:        "ticket-panel",
			Description: "Post the ticket category panel",
		},
		{
			Name:        "trade-offer",
			Description: "Offer an item to another fraction",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "buyer", Description: "Buyer fraction name", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "item", Description: "Item id from the inventory listing", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "quantity", Description: "Quantity to trade", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "price", Description: "Asking price", Required: true},
			},
		},
		{
			Name:        "report",
			Description: "Activity report from the audit log",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "period", Description: "day or week", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
		{
			Name:                     "reload",
			Description:              "Re-register all commands",
			DefaultMemberPermissions: &adminPermission,
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()
	appID := b.session.State.User.ID
	guildID := b.cfg.GuildID

	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
	}
	return nil
}
