package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cwkhub/internal/calendar"
)

func TestDefaultMatchesBuiltinBlocks(t *testing.T) {
	cfg := Default("acme")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Organisation.ID != "acme" {
		t.Fatalf("unexpected org id %q", cfg.Organisation.ID)
	}
	if got, want := cfg.Blocks(), calendar.DefaultBlocks(); !reflect.DeepEqual(got, want) {
		t.Fatalf("blocks mismatch:\n got %+v\nwant %+v", got, want)
	}
	if cfg.Finance.PartialPaymentFallback != 0.5 {
		t.Fatalf("unexpected fallback %v", cfg.Finance.PartialPaymentFallback)
	}
	if cfg.PartialPaymentFallback().String() != "0.5" {
		t.Fatalf("unexpected decimal fallback %s", cfg.PartialPaymentFallback())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing org": `organisation: {id: ""}`,
		"bad weekday": `organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: funday, start: "09:00", end: "10:00", recurrence: weekly}`,
		"inverted range": `organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: monday, start: "10:00", end: "09:00", recurrence: weekly}`,
		"bad recurrence": `organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: monday, start: "09:00", end: "10:00", recurrence: monthly}`,
		"bad parity": `organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: monday, start: "09:00", end: "10:00", recurrence: biweekly, iso_week_parity: third}`,
		"duplicate block": `organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: monday, start: "09:00", end: "10:00", recurrence: weekly}
    - {id: b, weekday: friday, start: "09:00", end: "10:00", recurrence: weekly}`,
		"fallback out of range": `organisation: {id: x}
finance: {partial_payment_fallback: 1.5}`,
		"webhook without url": `organisation: {id: x}
webhooks:
  - events: [invite.created]`,
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBiweeklyParityDefaultsToOdd(t *testing.T) {
	cfg, err := FromYAML([]byte(`organisation: {id: x}
calendar:
  blocks:
    - {id: b, weekday: friday, start: "14:00", end: "15:00", recurrence: biweekly}
    - {id: w, weekday: monday, start: "09:00", end: "10:00", recurrence: weekly}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bs := cfg.Blocks()
	if len(bs) != 2 || bs[0].Parity != calendar.OddWeeks || bs[0].Recurrence != calendar.Biweekly {
		t.Fatalf("unexpected blocks %+v", bs)
	}
	// weekly blocks carry no parity
	if bs[1].Recurrence != calendar.Weekly || bs[1].Parity != "" {
		t.Fatalf("weekly block got parity: %+v", bs[1])
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cwkhub.yml"), []byte(GenerateDefault("org-1")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Organisation.ID != "org-1" || cfg.Finance.Currency != "EUR" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
