// Package algorithm computes candidate stop prices for open positions.
// Every calculator is side-mirrored and falls back to the fixed-percentage
// stop when it cannot produce a usable level.
package algorithm

import (
	"time"

	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

// Kind selects the stop price calculation.
type Kind string

const (
	KindFixedPercentage      Kind = "fixed_percentage"
	KindTrailingMax          Kind = "trailing_max_price"
	KindEMABased             Kind = "ema_based"
	KindATRBased             Kind = "atr_based"
	KindSupportLevel         Kind = "support_level"
	KindAdaptiveATR          Kind = "adaptive_atr"
	KindVolatilityBased      Kind = "volatility_based"
	KindFibonacciRetracement Kind = "fibonacci_retracement"
	KindSupertrend           Kind = "supertrend"
	KindParabolicSAR         Kind = "parabolic_sar"
	KindBollingerBand        Kind = "bollinger_band"
	KindRiskRewardRatio      Kind = "risk_reward_ratio"
	KindTimeDecay            Kind = "time_decay"
	KindMomentumDivergence   Kind = "momentum_divergence"
)

// Config carries the parameters for all calculators. Only the fields for the
// selected Kind are consulted.
type Config struct {
	Kind       Kind
	Percentage float64 // percent, e.g. 5.0 means 5%

	EMAPeriod int

	ATRPeriod           int
	ATRMultiplier       float64
	AdaptiveATRLookback int

	VolatilityPeriod     int
	VolatilityMultiplier float64

	SupportLookback   int
	FibonacciLookback int

	SupertrendPeriod     int
	SupertrendMultiplier float64

	SARAcceleration float64
	SARMaximum      float64

	BBPeriod int
	BBStdDev float64

	RiskRewardRatio float64

	TimeDecayHours  float64
	TimeDecayFactor float64

	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Input is everything a calculator may consult. MarketPrice defaults to the
// last candle close when zero.
type Input struct {
	Side        position.Side
	EntryPrice  float64
	MarketPrice float64
	HighWater   float64
	LowWater    float64
	OpenedAt    time.Time
	Now         time.Time
	TakeProfit  float64
	Candles     []Candle
}

func (in Input) market() float64 {
	if in.MarketPrice > 0 {
		return in.MarketPrice
	}
	if n := len(in.Candles); n > 0 {
		return in.Candles[n-1].Close
	}
	return in.EntryPrice
}

func (in Input) long() bool { return in.Side == position.SideLong }

// calcFunc produces a stop level, or reports false when the inputs are not
// sufficient for this kind.
type calcFunc func(cfg Config, in Input) (float64, bool)

var calculators = map[Kind]calcFunc{
	KindFixedPercentage:      calcFixedPercentage,
	KindTrailingMax:          calcTrailingMax,
	KindEMABased:             calcEMABased,
	KindATRBased:             calcATRBased,
	KindSupportLevel:         calcSupportLevel,
	KindAdaptiveATR:          calcAdaptiveATR,
	KindVolatilityBased:      calcVolatilityBased,
	KindFibonacciRetracement: calcFibonacci,
	KindSupertrend:           calcSupertrend,
	KindParabolicSAR:         calcParabolicSAR,
	KindBollingerBand:        calcBollinger,
	KindRiskRewardRatio:      calcRiskReward,
	KindTimeDecay:            calcTimeDecay,
	KindMomentumDivergence:   calcMomentumDivergence,
}

// Calculate returns the stop price for the configured kind. An unknown kind,
// insufficient data, or a degenerate result all fall back to the
// fixed-percentage stop, which only needs the entry price.
func Calculate(cfg Config, in Input) float64 {
	if in.EntryPrice <= 0 {
		return 0
	}
	calc, ok := calculators[cfg.Kind]
	if !ok {
		logger.Warnf("Unknown stop algorithm kind %q, using fixed percentage", cfg.Kind)
		stop, _ := calcFixedPercentage(cfg, in)
		return stop
	}
	if stop, ok := calc(cfg, in); ok && stop > 0 {
		return stop
	}
	stop, _ := calcFixedPercentage(cfg, in)
	return stop
}
