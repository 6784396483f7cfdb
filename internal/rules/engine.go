// Package rules provides the ordered keyword rules used to classify expenses
// before falling back to an external classifier.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"spendwise/internal/core"
)

//go:embed rules.yaml
var embeddedRules []byte

// Rule maps a description substring to a category.
type Rule struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine evaluates rules strictly in file order. The first rule whose
// keyword is contained in the description wins, so overlapping keywords are
// resolved by position alone.
type Engine struct {
	rules []Rule
}

// NewEngine creates a rules engine from YAML data
func NewEngine(data []byte) (*Engine, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse rules YAML: %w", err)
	}
	if len(set.Rules) == 0 {
		return nil, fmt.Errorf("rules file has no rules")
	}

	rules := make([]Rule, 0, len(set.Rules))
	for i, r := range set.Rules {
		keyword := strings.ToLower(strings.TrimSpace(r.Keyword))
		if keyword == "" {
			return nil, fmt.Errorf("rule %d: keyword cannot be empty", i)
		}
		category, ok := core.CanonicalCategory(r.Category)
		if !ok {
			return nil, fmt.Errorf("rule %d (%s): invalid category %q", i, keyword, r.Category)
		}
		rules = append(rules, Rule{Keyword: keyword, Category: category})
	}
	return &Engine{rules: rules}, nil
}

// LoadEmbedded loads the rules compiled into the binary.
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("load embedded rules: %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Load uses path when set and the embedded rules otherwise.
func Load(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return LoadEmbedded()
	}
	return LoadFromFile(path)
}

// Match returns the category of the first rule matching description.
func (e *Engine) Match(description string) (string, bool) {
	desc := strings.ToLower(description)
	for _, r := range e.rules {
		if strings.Contains(desc, r.Keyword) {
			return r.Category, true
		}
	}
	return "", false
}

// Rules returns a copy of the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
