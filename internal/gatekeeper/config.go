// Package gatekeeper implements the deterministic go/no-go decision over gap findings.
package gatekeeper

import (
	"fmt"
)

// Severity levels of red flags
const (
	SeverityLow  = "low"
	SeverityHigh = "high"
)

// Fit bands derived from the fit percentage
const (
	BandExcellent = "excellent"
	BandGood      = "good"
	BandFair      = "fair"
	BandPoor      = "poor"
)

// Weights are the contribution of each gap classification, relative to the item weight
type Weights struct {
	Met     float64 `mapstructure:"met" json:"met" validate:"gte=0,lte=1"`
	Partial float64 `mapstructure:"partial" json:"partial" validate:"gte=0,lte=1"`
	Missing float64 `mapstructure:"missing" json:"missing" validate:"gte=0,lte=1"`
}

// Thresholds split the 0-100 fit scale into bands
type Thresholds struct {
	ExcellentFloor float64 `mapstructure:"excellent_floor" json:"excellent_floor" validate:"gte=0,lte=100"`
	GoodFloor      float64 `mapstructure:"good_floor" json:"good_floor" validate:"gte=0,lte=100"`
	RejectCeiling  float64 `mapstructure:"reject_ceiling" json:"reject_ceiling" validate:"gte=0,lte=100"`
}

// Criteria are the disqualifying conditions that force a pass
type Criteria struct {
	// Keywords are phrases that disqualify a posting when present in the description
	Keywords []string `mapstructure:"keywords" json:"keywords"`
	// MinCompensation is the annual compensation floor; 0 disables the check
	MinCompensation float64 `mapstructure:"min_compensation" json:"min_compensation" validate:"gte=0"`
	// DisallowedArrangements are work arrangements the candidate will not accept
	DisallowedArrangements []string `mapstructure:"disallowed_arrangements" json:"disallowed_arrangements"`
}

// Pattern is one red-flag heuristic
type Pattern struct {
	Code     string   `mapstructure:"code" json:"code" validate:"required"`
	Severity string   `mapstructure:"severity" json:"severity" validate:"oneof=low high"`
	Detail   string   `mapstructure:"detail" json:"detail"`
	Phrases  []string `mapstructure:"phrases" json:"phrases" validate:"min=1"`
}

// Config is the gatekeeper configuration
type Config struct {
	Weights    Weights    `mapstructure:"weights" json:"weights"`
	Thresholds Thresholds `mapstructure:"thresholds" json:"thresholds"`
	// RedFlagLimit is the severity total at which red flags outweigh a high fit
	RedFlagLimit    int       `mapstructure:"red_flag_limit" json:"red_flag_limit" validate:"gte=1"`
	Criteria        Criteria  `mapstructure:"criteria" json:"criteria"`
	RedFlagPatterns []Pattern `mapstructure:"red_flag_patterns" json:"red_flag_patterns" validate:"dive"`
}

// DefaultConfig returns the default gatekeeper configuration
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Met: 1, Partial: 0.5, Missing: 0},
		Thresholds: Thresholds{
			ExcellentFloor: 80,
			GoodFloor:      60,
			RejectCeiling:  40,
		},
		RedFlagLimit:    2,
		RedFlagPatterns: DefaultPatterns(),
	}
}

// DefaultPatterns returns the built-in red-flag heuristics
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Code:     "unpaid_work",
			Severity: SeverityHigh,
			Detail:   "posting expects unpaid work",
			Phrases:  []string{"unpaid", "without pay", "unpaid trial", "free trial period", "no compensation"},
		},
		{
			Code:     "excessive_hours",
			Severity: SeverityHigh,
			Detail:   "posting expects excessive or unbounded hours",
			Phrases:  []string{"24/7", "nights and weekends", "always available", "always on call", "60+ hours", "70+ hours"},
		},
		{
			Code:     "vague_compensation",
			Severity: SeverityLow,
			Detail:   "compensation is not stated concretely",
			Phrases:  []string{"competitive salary", "competitive pay", "competitive compensation", "depending on experience", "doe", "salary negotiable"},
		},
		{
			Code:     "culture_warning",
			Severity: SeverityLow,
			Detail:   "posting language suggests poor boundaries",
			Phrases:  []string{"work hard, play hard", "work hard play hard", "like a family", "rockstar", "ninja", "wear many hats", "fast-paced environment"},
		},
	}
}

// Validate checks ordering constraints the struct tags cannot express
func (c Config) Validate() error {
	t := c.Thresholds
	if !(t.RejectCeiling <= t.GoodFloor && t.GoodFloor <= t.ExcellentFloor) {
		return fmt.Errorf("thresholds must satisfy reject_ceiling <= good_floor <= excellent_floor, got %g/%g/%g",
			t.RejectCeiling, t.GoodFloor, t.ExcellentFloor)
	}
	if t.ExcellentFloor > 100 || t.RejectCeiling < 0 {
		return fmt.Errorf("thresholds must lie within [0, 100]")
	}
	w := c.Weights
	if !(w.Missing <= w.Partial && w.Partial <= w.Met) || w.Met <= 0 {
		return fmt.Errorf("weights must satisfy 0 <= missing <= partial <= met and met > 0")
	}
	if c.RedFlagLimit < 1 {
		return fmt.Errorf("red_flag_limit must be at least 1")
	}
	for _, p := range c.RedFlagPatterns {
		if p.Code == "" {
			return fmt.Errorf("red flag pattern without code")
		}
		if p.Severity != SeverityLow && p.Severity != SeverityHigh {
			return fmt.Errorf("red flag pattern %s: invalid severity %q", p.Code, p.Severity)
		}
	}
	return nil
}
