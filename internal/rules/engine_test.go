package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbedded_Order(t *testing.T) {
	engine, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	rules := engine.Rules()
	if len(rules) != 15 {
		t.Fatalf("rules count = %d, want 15", len(rules))
	}
	if rules[0].Keyword != "swiggy" || rules[len(rules)-1].Keyword != "internet" {
		t.Errorf("unexpected rule order: first=%s last=%s", rules[0].Keyword, rules[len(rules)-1].Keyword)
	}
}

func TestMatch(t *testing.T) {
	engine, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}

	tests := []struct {
		desc     string
		category string
		ok       bool
	}{
		{"Dinner via SWIGGY", "Food", true},
		{"Zomato order", "Food", true},
		{"Weekly grocery run", "Groceries", true},
		{"Uber to airport", "Transport", true},
		{"Petrol refill", "Transport", true},
		{"Amazon prime day", "Shopping", true},
		{"Netflix subscription", "Entertainment", true},
		{"Monthly rent", "Housing", true},
		{"Electricity bill", "Utilities", true},
		{"Internet plan", "Utilities", true},
		// earlier rules win when keywords overlap
		{"restaurant near the uber office", "Food", true},
		{"amazon water bottle", "Shopping", true},
		{"Doctor visit", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, ok := engine.Match(tt.desc)
			if ok != tt.ok || got != tt.category {
				t.Errorf("Match(%q) = %q,%v want %q,%v", tt.desc, got, ok, tt.category, tt.ok)
			}
		})
	}
}

func TestMatch_SubstringHitsInsideWords(t *testing.T) {
	engine, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}

	tests := map[string]string{
		"Coca-Cola six pack":          "Transport",
		"Gift for parent":             "Housing",
		"Coca-Cola at the restaurant": "Food",
	}
	for desc, want := range tests {
		if got, ok := engine.Match(desc); !ok || got != want {
			t.Errorf("Match(%q) = %q,%v want %q", desc, got, ok, want)
		}
	}

	override, err := NewEngine([]byte(`
rules:
  - keyword: coca-cola
    category: Food
  - keyword: ola
    category: Transport
`))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if got, _ := override.Match("Coca-Cola six pack"); got != "Food" {
		t.Errorf("specific keyword listed first should win, got %q", got)
	}
}

func TestNewEngine_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "rules: [\n"},
		{"no rules", "rules: []\n"},
		{"empty keyword", "rules:\n  - keyword: \" \"\n    category: Food\n"},
		{"unknown category", "rules:\n  - keyword: gym\n    category: Fitness\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine([]byte(tt.yaml)); err == nil {
				t.Errorf("NewEngine() expected error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - keyword: Pharmacy\n    category: health\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	engine, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, ok := engine.Match("city pharmacy")
	if !ok || got != "Health" {
		t.Errorf("Match() = %q,%v want Health,true", got, ok)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
