package booking

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ThresholdPolicy decides when enough players have signed up to book.
type ThresholdPolicy struct {
	HalfThreshold   int
	FullThreshold   int
	PreferredTime   TimeOfDay
	AutoBookEnabled bool
}

// DefaultPolicy mirrors the documented configuration defaults.
func DefaultPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		HalfThreshold:   14,
		FullThreshold:   18,
		PreferredTime:   TimeOfDay{Hour: 19},
		AutoBookEnabled: true,
	}
}

func (p ThresholdPolicy) Validate() error {
	if p.HalfThreshold < 1 {
		return fmt.Errorf("half threshold must be >= 1 (got %d)", p.HalfThreshold)
	}
	if p.FullThreshold < p.HalfThreshold {
		return fmt.Errorf("full threshold %d is below half threshold %d", p.FullThreshold, p.HalfThreshold)
	}
	return nil
}

// StrategyKind enumerates the booking strategies.
type StrategyKind string

const (
	StrategyNone      StrategyKind = "none"
	StrategySingle    StrategyKind = "single"
	StrategyDualThird StrategyKind = "dual-third"
)

// Strategy is what the orchestrator will try to book. Category is only set for single.
type Strategy struct {
	Kind     StrategyKind
	Category Category
}

func (s Strategy) String() string {
	if s.Kind == StrategySingle {
		return fmt.Sprintf("single(%s)", s.Category)
	}
	return string(s.Kind)
}

// StrategyFor derives the strategy from the signup count alone.
func StrategyFor(count int, p ThresholdPolicy) Strategy {
	switch {
	case count >= p.FullThreshold:
		return Strategy{Kind: StrategyDualThird}
	case count >= p.HalfThreshold:
		return Strategy{Kind: StrategySingle, Category: CategoryThird}
	default:
		return Strategy{Kind: StrategyNone}
	}
}

// CostPerPlayer splits total evenly, rounded half-up to pence.
func CostPerPlayer(total decimal.Decimal, players int) decimal.Decimal {
	if players <= 0 {
		return total.Round(2)
	}
	return total.Div(decimal.NewFromInt(int64(players))).Round(2)
}
