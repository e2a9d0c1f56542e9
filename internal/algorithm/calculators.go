package algorithm

// calcFixedPercentage is the baseline stop and the universal fallback.
func calcFixedPercentage(cfg Config, in Input) (float64, bool) {
	if in.long() {
		return in.EntryPrice * (1 - cfg.Percentage/100), true
	}
	return in.EntryPrice * (1 + cfg.Percentage/100), true
}

// calcTrailingMax trails the best price seen since entry by the configured
// percentage. The watermark comes from the tracker; candles since entry fill
// in when no watermark has been observed yet.
func calcTrailingMax(cfg Config, in Input) (float64, bool) {
	if in.long() {
		best := in.HighWater
		for _, c := range in.Candles {
			if !c.Time.Before(in.OpenedAt) && c.High > best {
				best = c.High
			}
		}
		if best <= 0 {
			return 0, false
		}
		return best * (1 - cfg.Percentage/100), true
	}
	best := in.LowWater
	for _, c := range in.Candles {
		if !c.Time.Before(in.OpenedAt) && (best == 0 || c.Low < best) {
			best = c.Low
		}
	}
	if best <= 0 {
		return 0, false
	}
	return best * (1 + cfg.Percentage/100), true
}

func calcEMABased(cfg Config, in Input) (float64, bool) {
	closes := closes(in.Candles)
	if len(closes) == 0 {
		return 0, false
	}
	ema := EMA(closes, cfg.EMAPeriod)
	if in.long() {
		return ema * (1 - cfg.Percentage/100), true
	}
	return ema * (1 + cfg.Percentage/100), true
}

func calcATRBased(cfg Config, in Input) (float64, bool) {
	atr, ok := lastATR(in.Candles, cfg.ATRPeriod)
	if !ok {
		return 0, false
	}
	if in.long() {
		return in.market() - atr*cfg.ATRMultiplier, true
	}
	return in.market() + atr*cfg.ATRMultiplier, true
}

// calcSupportLevel places the stop at classic pivot-point supports for longs
// and resistances for shorts.
func calcSupportLevel(cfg Config, in Input) (float64, bool) {
	window := tail(in.Candles, cfg.SupportLookback)
	if len(window) == 0 {
		return 0, false
	}
	maxHigh, minLow := highLow(window)
	lastClose := window[len(window)-1].Close
	pivot := (maxHigh + minLow + lastClose) / 3

	if in.long() {
		support1 := 2*pivot - maxHigh
		support2 := pivot - (maxHigh - minLow)
		if support1 > support2 {
			return support1, true
		}
		return support2, true
	}
	resistance1 := 2*pivot - minLow
	resistance2 := pivot + (maxHigh - minLow)
	if resistance1 < resistance2 {
		return resistance1, true
	}
	return resistance2, true
}

// calcAdaptiveATR widens the ATR stop while volatility is expanding and
// tightens it while volatility contracts. The multiplier scales by 1.5 when
// the ATR rose more than 20% over the lookback, and by 0.7 when it fell more
// than 20%.
func calcAdaptiveATR(cfg Config, in Input) (float64, bool) {
	series, ok := atrSeries(in.Candles, cfg.ATRPeriod)
	if !ok {
		return 0, false
	}

	lookback := cfg.AdaptiveATRLookback
	if lookback > len(series) {
		lookback = len(series)
	}
	window := series[len(series)-lookback:]
	first, last := window[0], window[len(window)-1]
	if first <= 0 {
		return 0, false
	}
	trend := (last - first) / first

	multiplier := cfg.ATRMultiplier
	switch {
	case trend > 0.2:
		multiplier *= 1.5
	case trend < -0.2:
		multiplier *= 0.7
	}

	if in.long() {
		return in.market() - last*multiplier, true
	}
	return in.market() + last*multiplier, true
}

func calcVolatilityBased(cfg Config, in Input) (float64, bool) {
	std, ok := StdDev(closes(in.Candles), cfg.VolatilityPeriod)
	if !ok {
		return 0, false
	}
	if in.long() {
		return in.market() - std*cfg.VolatilityMultiplier, true
	}
	return in.market() + std*cfg.VolatilityMultiplier, true
}

// calcFibonacci uses the 38.2% retracement of the lookback range for either
// side.
func calcFibonacci(cfg Config, in Input) (float64, bool) {
	window := tail(in.Candles, cfg.FibonacciLookback)
	if len(window) == 0 {
		return 0, false
	}
	maxHigh, minLow := highLow(window)
	return maxHigh - (maxHigh-minLow)*0.382, true
}

// calcSupertrend uses the SuperTrend line as the stop while the trend agrees
// with the position's side.
func calcSupertrend(cfg Config, in Input) (float64, bool) {
	value, trend, ok := Supertrend(in.Candles, cfg.SupertrendPeriod, cfg.SupertrendMultiplier)
	if !ok {
		return 0, false
	}
	if in.long() && trend == 1 {
		return value, true
	}
	if !in.long() && trend == -1 {
		return value, true
	}
	return 0, false
}

func calcParabolicSAR(cfg Config, in Input) (float64, bool) {
	initialTrend := 1
	if !in.long() {
		initialTrend = -1
	}
	return ParabolicSAR(in.Candles, cfg.SARAcceleration, cfg.SARMaximum, initialTrend)
}

func calcBollinger(cfg Config, in Input) (float64, bool) {
	cl := closes(in.Candles)
	std, ok := StdDev(cl, cfg.BBPeriod)
	if !ok {
		return 0, false
	}
	sma, ok := SMA(cl, cfg.BBPeriod)
	if !ok {
		return 0, false
	}
	if in.long() {
		return sma - std*cfg.BBStdDev, true
	}
	return sma + std*cfg.BBStdDev, true
}

// calcRiskReward sizes the acceptable loss from the distance to the take
// profit level.
func calcRiskReward(cfg Config, in Input) (float64, bool) {
	if in.TakeProfit <= 0 || cfg.RiskRewardRatio <= 0 {
		return 0, false
	}
	if in.long() {
		acceptableLoss := (in.TakeProfit - in.EntryPrice) / cfg.RiskRewardRatio
		return in.EntryPrice - acceptableLoss, true
	}
	acceptableLoss := (in.EntryPrice - in.TakeProfit) / cfg.RiskRewardRatio
	return in.EntryPrice + acceptableLoss, true
}

// calcTimeDecay tightens the baseline stop toward the entry as the position
// ages, down to (1 - decay factor) of the original distance.
func calcTimeDecay(cfg Config, in Input) (float64, bool) {
	if in.OpenedAt.IsZero() || in.Now.IsZero() || cfg.TimeDecayHours <= 0 {
		return 0, false
	}
	hoursElapsed := in.Now.Sub(in.OpenedAt).Hours()

	timeMultiplier := 1 - cfg.TimeDecayFactor
	if hoursElapsed < cfg.TimeDecayHours {
		timeMultiplier = 1 - cfg.TimeDecayFactor*(hoursElapsed/cfg.TimeDecayHours)
	}

	base, _ := calcFixedPercentage(cfg, in)
	if in.long() {
		return in.EntryPrice - (in.EntryPrice-base)*timeMultiplier, true
	}
	return in.EntryPrice + (base-in.EntryPrice)*timeMultiplier, true
}

// calcMomentumDivergence scales the baseline stop by 20% depending on RSI
// extremes: tighter when momentum runs against the position, looser when it
// runs with it.
func calcMomentumDivergence(cfg Config, in Input) (float64, bool) {
	rsi, ok := RSI(closes(in.Candles), cfg.RSIPeriod)
	if !ok {
		return 0, false
	}
	base, _ := calcFixedPercentage(cfg, in)

	if in.long() {
		if rsi < cfg.RSIOversold {
			return base * 1.2, true
		}
		if rsi > cfg.RSIOverbought {
			return base * 0.8, true
		}
		return base, true
	}
	if rsi > cfg.RSIOverbought {
		return base * 0.8, true
	}
	if rsi < cfg.RSIOversold {
		return base * 1.2, true
	}
	return base, true
}

func closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func tail(candles []Candle, n int) []Candle {
	if n <= 0 || n >= len(candles) {
		return candles
	}
	return candles[len(candles)-n:]
}

func highLow(candles []Candle) (maxHigh, minLow float64) {
	for i, c := range candles {
		if i == 0 || c.High > maxHigh {
			maxHigh = c.High
		}
		if i == 0 || c.Low < minLow {
			minLow = c.Low
		}
	}
	return maxHigh, minLow
}
