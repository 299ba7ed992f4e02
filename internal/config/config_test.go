package config

import "testing"

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1f8b4c", want: 0x1F8B4C},
		{in: "#1F8B4C", want: 0x1F8B4C},
		{in: "000000", want: 0},
		{in: "fff", wantErr: true},
		{in: "zzzzzz", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseHexColor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHexColor(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHexColor(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHexColor(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestValidateTickets(t *testing.T) {
	valid := TicketConfig{Categories: []TicketCategory{
		{ID: "general", Responses: []TicketResponse{{ID: "r1"}, {ID: "r2", Reward: 100}}},
		{ID: "payout", Responses: []TicketResponse{{ID: "r1"}}},
	}}
	if err := validateTickets(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	dupCategory := TicketConfig{Categories: []TicketCategory{{ID: "general"}, {ID: "general"}}}
	if err := validateTickets(dupCategory); err == nil {
		t.Fatal("expected error for duplicate category id")
	}

	dupResponse := TicketConfig{Categories: []TicketCategory{
		{ID: "general", Responses: []TicketResponse{{ID: "r1"}, {ID: "r1"}}},
	}}
	if err := validateTickets(dupResponse); err == nil {
		t.Fatal("expected error for duplicate response id")
	}

	negativeReward := TicketConfig{Categories: []TicketCategory{
		{ID: "general", Responses: []TicketResponse{{ID: "r1", Reward: -5}}},
	}}
	if err := validateTickets(negativeReward); err == nil {
		t.Fatal("expected error for negative reward")
	}
}

func TestCategoryAndResponseLookup(t *testing.T) {
	tickets := TicketConfig{Categories: []TicketCategory{
		{ID: "general", Label: "General", Responses: []TicketResponse{{ID: "r1", Label: "Hello"}}},
	}}

	category, ok := tickets.Category("general")
	if !ok || category.Label != "General" {
		t.Fatalf("category lookup failed: %+v %v", category, ok)
	}
	if _, ok := tickets.Category("missing"); ok {
		t.Fatal("expected missing category to be absent")
	}

	response, ok := category.Response("r1")
	if !ok || response.Label != "Hello" {
		t.Fatalf("response lookup failed: %+v %v", response, ok)
	}
	if _, ok := category.Response("missing"); ok {
		t.Fatal("expected missing response to be absent")
	}
}
