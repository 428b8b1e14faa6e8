// Package fees holds the fee policy table: a static mapping from fee
// category to calculation rule, built once at startup and never
// mutated.
package fees

import "cardledger/internal/config"

// Category identifies a fee policy.
type Category string

const (
	CategoryFunding           Category = "funding"
	CategoryCardIssuance      Category = "card_issuance"
	CategoryInsufficientFunds Category = "insufficient_funds_penalty"
	CategoryCardMaintenance   Category = "card_maintenance"
)

// Rule kinds
const (
	RuleNone            = "none"
	RulePercentage      = "percentage"
	RuleFixed           = "fixed"
	RulePercentageFixed = "percentage_plus_fixed"
)

// Rule describes how a category's fee is computed. PercentBps is in
// basis points so all arithmetic stays in integer minor units.
// RequiresCharge marks fees collected via an out-of-band provider
// charge rather than deducted up front.
type Rule struct {
	Kind           string
	PercentBps     int64
	Fixed          int64
	RequiresCharge bool
}

// Quote is a computed fee for a concrete amount.
type Quote struct {
	Fee            int64
	RequiresCharge bool
}

// Table maps categories to rules.
type Table map[Category]Rule

// DefaultTable builds the fee table from the environment with the
// production defaults.
func DefaultTable() Table {
	return Table{
		CategoryFunding: {
			Kind:           RulePercentage,
			PercentBps:     config.GetInt64Env("FEE_FUNDING_BPS", 250), // 2.5%
			RequiresCharge: true,
		},
		CategoryCardIssuance: {
			Kind:           RuleFixed,
			Fixed:          config.GetInt64Env("FEE_CARD_ISSUANCE", 100),
			RequiresCharge: true,
		},
		CategoryInsufficientFunds: {
			Kind:  RuleFixed,
			Fixed: config.GetInt64Env("FEE_INSUFFICIENT_FUNDS", 50),
			// Deducted from the card balance directly; may drive it
			// negative.
			RequiresCharge: false,
		},
		CategoryCardMaintenance: {
			Kind: RuleNone,
		},
	}
}

// Quote computes the fee for amount under the category's rule. Unknown
// categories quote zero with no charge required.
func (t Table) Quote(category Category, amount int64) Quote {
	rule, ok := t[category]
	if !ok {
		return Quote{}
	}

	var fee int64
	switch rule.Kind {
	case RulePercentage:
		fee = amount * rule.PercentBps / 10000
	case RuleFixed:
		fee = rule.Fixed
	case RulePercentageFixed:
		fee = amount*rule.PercentBps/10000 + rule.Fixed
	case RuleNone:
		fee = 0
	}

	return Quote{Fee: fee, RequiresCharge: rule.RequiresCharge && fee > 0}
}
