package matching

import "strings"

// Rule maps a reference substring pattern to a category. Rules are data, not
// inline conditionals, so operators can review and extend them.
type Rule struct {
	Pattern  string
	Category string
}

// RuleSet evaluates rules in order; the first matching pattern wins.
type RuleSet struct {
	rules    []Rule
	fallback string
}

// NewRuleSet builds a rule set with a fallback category for references no
// rule matches.
func NewRuleSet(rules []Rule, fallback string) *RuleSet {
	return &RuleSet{
		rules:    rules,
		fallback: fallback,
	}
}

// Categorise returns the category of the first rule whose pattern occurs in
// the reference, compared case-insensitively.
func (rs *RuleSet) Categorise(reference string) string {
	ref := strings.ToLower(reference)
	for _, rule := range rs.rules {
		if strings.Contains(ref, strings.ToLower(rule.Pattern)) {
			return rule.Category
		}
	}
	return rs.fallback
}

// Settlement batch groups. The remote processors settle per batch, not per
// transaction, so clearing entries are grouped by category before deposit
// matching.
const (
	CategoryCard          = "card"
	CategoryMedicare      = "medicare"
	CategoryHealthFund    = "health_fund"
	CategoryDirectDeposit = "direct_deposit"
	CategoryOther         = "other"
)

// DefaultSettlementRules categorises clearing entry references by the
// payment channel that produced them.
func DefaultSettlementRules() *RuleSet {
	return NewRuleSet([]Rule{
		{Pattern: "eftpos", Category: CategoryCard},
		{Pattern: "tyro", Category: CategoryCard},
		{Pattern: "visa", Category: CategoryCard},
		{Pattern: "mastercard", Category: CategoryCard},
		{Pattern: "medicare", Category: CategoryMedicare},
		{Pattern: "bulk bill", Category: CategoryMedicare},
		{Pattern: "hicaps", Category: CategoryHealthFund},
		{Pattern: "health fund", Category: CategoryHealthFund},
		{Pattern: "direct deposit", Category: CategoryDirectDeposit},
		{Pattern: "bank transfer", Category: CategoryDirectDeposit},
	}, CategoryOther)
}
