package discovery

import (
	"strings"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

// Category is the class an object identifier belongs to.
type Category int

const (
	CategoryNone Category = iota
	CategoryGenerator
	CategoryBattery
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryGenerator:
		return "generator"
	case CategoryBattery:
		return "battery"
	default:
		return "none"
	}
}

// Rule maps an identifier prefix to a category.
type Rule struct {
	Prefix   string
	Category Category
}

// Rules is an ordered classification table; the first matching rule wins.
type Rules []Rule

// Classify returns the category of id. Matching is case-sensitive.
func (r Rules) Classify(id string) Category {
	for _, rule := range r {
		if strings.HasPrefix(id, rule.Prefix) {
			return rule.Category
		}
	}
	return CategoryNone
}

// RulesFromConfig builds the table with generator prefixes ahead of
// battery prefixes.
func RulesFromConfig(cfg config.DiscoveryConfig) Rules {
	rules := make(Rules, 0, len(cfg.GeneratorPrefixes)+len(cfg.BatteryPrefixes))
	for _, p := range cfg.GeneratorPrefixes {
		rules = append(rules, Rule{Prefix: p, Category: CategoryGenerator})
	}
	for _, p := range cfg.BatteryPrefixes {
		rules = append(rules, Rule{Prefix: p, Category: CategoryBattery})
	}
	return rules
}
