package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"fractionbot/internal/config"
	"fractionbot/internal/modules/audit"
	"fractionbot/internal/storage"
	"fractionbot/internal/workflow"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestBot(t *testing.T, cfg config.Config) *Bot {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg.DiscordToken = "test-token"
	b, err := New(cfg, zap.NewNop(), store, audit.NewLogger(store, zap.NewNop()), nil)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b
}

func TestBackupRequiresAuditChannel(t *testing.T) {
	b := newTestBot(t, config.Config{})

	err := b.backupFraction(context.Background(), storage.Fraction{ID: 1, Name: "Ballas", Abbrev: "BL"})
	if err == nil {
		t.Fatal("expected backup to fail without an audit channel")
	}
}

func TestTicketComponentsFilterUsedResponses(t *testing.T) {
	cfg := config.Config{Tickets: config.TicketConfig{Categories: []config.TicketCategory{{
		ID: "general",
		Responses: []config.TicketResponse{
			{ID: "once", Label: "One-shot"},
			{ID: "again", Label: "Repeatable", Repeatable: true},
		},
	}}}}
	b := newTestBot(t, cfg)
	ctx := context.Background()

	category, _ := cfg.Tickets.Category("general")
	for _, id := range []string{"once", "again"} {
		if err := b.store.MarkResponseUsed(ctx, "ch1", id); err != nil {
			t.Fatalf("mark used: %v", err)
		}
	}

	components, err := b.ticketComponents(ctx, category, "ch1")
	if err != nil {
		t.Fatalf("ticket components: %v", err)
	}
	if len(components) != 2 {
		t.Fatalf("expected menu row and button row, got %d rows", len(components))
	}
	row, ok := components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("expected actions row, got %T", components[0])
	}
	menu, ok := row.Components[0].(discordgo.SelectMenu)
	if !ok {
		t.Fatalf("expected select menu, got %T", row.Components[0])
	}
	if len(menu.Options) != 1 || menu.Options[0].Value != "again" {
		t.Fatalf("expected only the repeatable option, got %+v", menu.Options)
	}

	// A fresh channel sees both options.
	components, err = b.ticketComponents(ctx, category, "ch2")
	if err != nil {
		t.Fatalf("ticket components: %v", err)
	}
	row = components[0].(discordgo.ActionsRow)
	menu = row.Components[0].(discordgo.SelectMenu)
	if len(menu.Options) != 2 {
		t.Fatalf("expected both options, got %+v", menu.Options)
	}
}

func TestTicketResponseNotConsumedWhenDeliveryFails(t *testing.T) {
	cfg := config.Config{Tickets: config.TicketConfig{Categories: []config.TicketCategory{{
		ID:        "general",
		Responses: []config.TicketResponse{{ID: "once", Label: "One-shot", Content: "hello"}},
	}}}}
	b := newTestBot(t, cfg)
	ctx := context.Background()

	if err := b.store.CreateTicket(ctx, storage.Ticket{ChannelID: "ch1", OwnerID: "u1", OwnerName: "alice", CategoryID: "general"}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	interaction := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "ch1",
		Data:      discordgo.MessageComponentInteractionData{CustomID: "ticket:respond", Values: []string{"once"}},
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "staff"},
			Permissions: int64(discordgo.PermissionAdministrator),
		},
	}}

	b.session.Client = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("gateway unreachable")
	})}
	b.handleTicketResponse(ctx, interaction)

	used, err := b.store.ListUsedResponses(ctx, "ch1")
	if err != nil {
		t.Fatalf("list used: %v", err)
	}
	if len(used) != 0 {
		t.Fatalf("failed delivery consumed the option: %v", used)
	}

	b.session.Client = &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"id":"m1"}`)),
			Request:    req,
		}, nil
	})}
	b.handleTicketResponse(ctx, interaction)

	used, err = b.store.ListUsedResponses(ctx, "ch1")
	if err != nil {
		t.Fatalf("list used: %v", err)
	}
	if len(used) != 1 || used[0] != "once" {
		t.Fatalf("delivered response not recorded: %v", used)
	}
}

func TestOptionValues(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "fraction", Type: discordgo.ApplicationCommandOptionString, Value: "Ballas"},
		{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(250)},
	}
	values := optionValues(options)

	if got := values.str("fraction"); got != "Ballas" {
		t.Fatalf("expected Ballas, got %q", got)
	}
	if got := values.integer("amount"); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}
	if got := values.str("missing"); got != "" {
		t.Fatalf("expected empty string for missing option, got %q", got)
	}
	if got := values.integer("missing"); got != 0 {
		t.Fatalf("expected 0 for missing option, got %d", got)
	}
}

func TestWorkflowKeysAreScoped(t *testing.T) {
	b := newTestBot(t, config.Config{Workflow: config.WorkflowConfig{TimeoutSeconds: 60}})

	first := func(ctx context.Context, s *workflow.Session, e workflow.Event) (workflow.Result, error) {
		return workflow.Result{}, nil
	}
	b.workflows.Start(workflow.Key{Scope: "u1", Kind: "fraction-delete"}, "u1", b.workflowTimeout(), first, workflow.Hooks{})
	b.workflows.Start(workflow.Key{Scope: "u1", Kind: "take-item"}, "u1", b.workflowTimeout(), first, workflow.Hooks{})
	b.workflows.Start(workflow.Key{Scope: "u2", Kind: "fraction-delete"}, "u2", b.workflowTimeout(), first, workflow.Hooks{})

	if n := b.workflows.Len(); n != 3 {
		t.Fatalf("expected 3 independent sessions, got %d", n)
	}
	if !b.workflows.Active(workflow.Key{Scope: "u1", Kind: "take-item"}) {
		t.Fatal("take-item session for u1 missing")
	}
}
