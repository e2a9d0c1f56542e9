// Copyright (c) 2024 Stop-Guard-Bot
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package algorithm

import (
	"math"
)

// EMA returns the exponential moving average of the whole series with
// smoothing alpha = 2/(period+1), seeded with the first value.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// SMA returns the mean of the trailing window.
func SMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}
	window := values[len(values)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period), true
}

// StdDev returns the sample standard deviation of the trailing window.
func StdDev(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) < period {
		return 0, false
	}
	window := values[len(values)-period:]
	mean, _ := SMA(window, period)
	sumSq := 0.0
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period-1)), true
}

// trueRanges returns the true range per bar. The first bar has no previous
// close, so its range is simply high minus low.
func trueRanges(candles []Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		hl := c.High - c.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := candles[i-1].Close
		hc := math.Abs(c.High - prevClose)
		lc := math.Abs(c.Low - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// atrSeries returns the rolling-mean ATR values, one per bar starting at the
// first bar with a full window.
func atrSeries(candles []Candle, period int) ([]float64, bool) {
	if period < 1 || len(candles) < period {
		return nil, false
	}
	tr := trueRanges(candles)
	out := make([]float64, 0, len(tr)-period+1)
	sum := 0.0
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out, true
}

// lastATR returns the most recent ATR value.
func lastATR(candles []Candle, period int) (float64, bool) {
	series, ok := atrSeries(candles, period)
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// RSI returns the most recent relative strength index over the trailing
// window of gains and losses.
func RSI(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period+1 {
		return 0, false
	}
	gains := 0.0
	losses := 0.0
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// Supertrend computes the SuperTrend line and its current trend direction
// (1 for up, -1 for down).
func Supertrend(candles []Candle, period int, multiplier float64) (float64, int, bool) {
	atr, ok := atrSeries(candles, period)
	if !ok || len(atr) == 0 {
		return 0, 0, false
	}
	// atr[j] corresponds to candle index j+period-1.
	offset := period - 1

	var st float64
	trend := 1
	for j, a := range atr {
		c := candles[j+offset]
		hl2 := (c.High + c.Low) / 2
		upper := hl2 + multiplier*a
		lower := hl2 - multiplier*a

		if j == 0 {
			st = lower
			trend = 1
			continue
		}
		if c.Close > st {
			trend = 1
			st = lower
		} else {
			trend = -1
			st = upper
		}
	}
	return st, trend, true
}

// ParabolicSAR computes the stop-and-reverse level over the series, seeded
// with the given trend direction (1 long, -1 short).
func ParabolicSAR(candles []Candle, acceleration, maximum float64, initialTrend int) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}

	trend := initialTrend
	af := acceleration
	var sar, ep float64
	if trend == 1 {
		sar = candles[0].Low
		ep = candles[0].Low
	} else {
		sar = candles[0].High
		ep = candles[0].High
	}

	for i := 1; i < len(candles); i++ {
		c := candles[i]
		sar = sar + af*(ep-sar)

		if trend == 1 && c.Low < sar {
			trend = -1
			sar = ep
			ep = c.Low
			af = acceleration
		} else if trend == -1 && c.High > sar {
			trend = 1
			sar = ep
			ep = c.High
			af = acceleration
		} else {
			if trend == 1 && c.High > ep {
				ep = c.High
				af = math.Min(af+acceleration, maximum)
			} else if trend == -1 && c.Low < ep {
				ep = c.Low
				af = math.Min(af+acceleration, maximum)
			}
		}
	}
	return sar, true
}
