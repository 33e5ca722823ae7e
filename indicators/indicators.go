package indicators

import "math"

// EMA is a streaming exponential moving average. It is seeded with the SMA
// of the first `period` inputs and reports Ready only from that point on.
type EMA struct {
	period int
	alpha  float64
	value  float64
	seed   float64
	count  int
}

// NewEMA creates a streaming EMA for the given period
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Update feeds the next value into the average
func (e *EMA) Update(v float64) {
	e.count++
	if e.count < e.period {
		e.seed += v
		return
	}
	if e.count == e.period {
		e.seed += v
		e.value = e.seed / float64(e.period)
		return
	}
	e.value = v*e.alpha + e.value*(1-e.alpha)
}

// Value returns the current average; zero until Ready
func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}

// Ready reports whether the warm-up period has completed
func (e *EMA) Ready() bool {
	return e.count >= e.period
}

// Reset discards all accumulated state
func (e *EMA) Reset() {
	e.value = 0
	e.seed = 0
	e.count = 0
}

// ATR is a streaming Average True Range using Wilder's smoothing, seeded
// with the SMA of the first `period` true ranges.
type ATR struct {
	period    int
	value     float64
	seed      float64
	trCount   int
	prevClose float64
	hasPrev   bool
}

// NewATR creates a streaming ATR for the given period
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Update feeds the next bar into the range calculation
func (a *ATR) Update(high, low, close float64) {
	tr := high - low
	if a.hasPrev {
		tr = math.Max(tr, math.Max(
			math.Abs(high-a.prevClose),
			math.Abs(low-a.prevClose),
		))
	}
	a.prevClose = close
	a.hasPrev = true

	a.trCount++
	if a.trCount < a.period {
		a.seed += tr
		return
	}
	if a.trCount == a.period {
		a.seed += tr
		a.value = a.seed / float64(a.period)
		return
	}
	// Wilder's smoothing: RMA = (RMA*(N-1) + TR) / N
	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
}

// Value returns the current range; zero until Ready
func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.value
}

// Ready reports whether the warm-up period has completed
func (a *ATR) Ready() bool {
	return a.trCount >= a.period
}

// Reset discards all accumulated state
func (a *ATR) Reset() {
	a.value = 0
	a.seed = 0
	a.trCount = 0
	a.prevClose = 0
	a.hasPrev = false
}

// SpreadAnalyzer tracks the current and rolling-average bid/ask spread over
// a fixed window of quote ticks.
type SpreadAnalyzer struct {
	window  int
	spreads []float64
	next    int
	current float64
	seen    bool
}

// NewSpreadAnalyzer creates an analyzer averaging over the given window
func NewSpreadAnalyzer(window int) *SpreadAnalyzer {
	return &SpreadAnalyzer{
		window:  window,
		spreads: make([]float64, 0, window),
	}
}

// Update feeds the next top-of-book quote
func (s *SpreadAnalyzer) Update(bid, ask float64) {
	spread := ask - bid
	s.current = spread
	s.seen = true

	if len(s.spreads) < s.window {
		s.spreads = append(s.spreads, spread)
		return
	}
	s.spreads[s.next] = spread
	s.next = (s.next + 1) % s.window
}

// Current returns the most recent spread
func (s *SpreadAnalyzer) Current() float64 {
	return s.current
}

// Average returns the mean spread over the window seen so far
func (s *SpreadAnalyzer) Average() float64 {
	if len(s.spreads) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.spreads {
		sum += v
	}
	return sum / float64(len(s.spreads))
}

// Ready reports whether at least one quote has been observed
func (s *SpreadAnalyzer) Ready() bool {
	return s.seen
}

// Reset discards all accumulated state
func (s *SpreadAnalyzer) Reset() {
	s.spreads = s.spreads[:0]
	s.next = 0
	s.current = 0
	s.seen = false
}
