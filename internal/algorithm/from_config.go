package algorithm

import "github.com/your-org/stop-guard-bot/internal/config"

// FromConfig maps the YAML configuration onto a calculator Config.
func FromConfig(c config.AlgorithmConfig) Config {
	return Config{
		Kind:                 Kind(c.Kind),
		Percentage:           c.Percentage,
		EMAPeriod:            c.EMAPeriod,
		ATRPeriod:            c.ATRPeriod,
		ATRMultiplier:        c.ATRMultiplier,
		AdaptiveATRLookback:  c.AdaptiveATRLookback,
		VolatilityPeriod:     c.VolatilityPeriod,
		VolatilityMultiplier: c.VolatilityMultiplier,
		SupportLookback:      c.SupportLookback,
		FibonacciLookback:    c.FibonacciLookback,
		SupertrendPeriod:     c.SupertrendPeriod,
		SupertrendMultiplier: c.SupertrendMultiplier,
		SARAcceleration:      c.SARAcceleration,
		SARMaximum:           c.SARMaximum,
		BBPeriod:             c.BBPeriod,
		BBStdDev:             c.BBStdDev,
		RiskRewardRatio:      c.RiskRewardRatio,
		TimeDecayHours:       c.TimeDecayHours,
		TimeDecayFactor:      c.TimeDecayFactor,
		RSIPeriod:            c.RSIPeriod,
		RSIOversold:          c.RSIOversold,
		RSIOverbought:        c.RSIOverbought,
	}
}
