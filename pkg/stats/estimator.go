package stats

import (
	"fmt"
	"strings"
)

const (
	// SmoothingFactor weighs the previous estimate against a new sample. The
	// same factor decays the uncertainty, so confidence grows at the rate the
	// estimate settles.
	SmoothingFactor = 0.9

	// InitialEstimate is an optimistic per-core prior in nodes per second.
	InitialEstimate uint32 = 400_000
)

// Uncertainty thresholds above which a "?" marker is rendered.
var uncertaintyMarkers = [...]float64{0.1, 0.4, 0.7}

// Estimator keeps an exponential moving average of per-core throughput. It is
// not safe for concurrent use.
type Estimator struct {
	nps         uint32
	uncertainty float64
}

// NewEstimator starts at InitialEstimate with full uncertainty.
func NewEstimator() Estimator {
	return Estimator{
		nps:         InitialEstimate,
		uncertainty: 1.0,
	}
}

// Record folds a throughput sample into the estimate.
func (e *Estimator) Record(sample uint32) {
	e.uncertainty *= SmoothingFactor
	e.nps = uint32(float64(e.nps)*SmoothingFactor + float64(sample)*(1-SmoothingFactor))
}

// NPS returns the smoothed nodes per second per core.
func (e Estimator) NPS() uint32 {
	return e.nps
}

// Uncertainty returns a value in [0, 1]; 1 means no samples yet.
func (e Estimator) Uncertainty() float64 {
	return e.uncertainty
}

// String renders the estimate for status lines, e.g. "390 knps/core ???".
func (e Estimator) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d knps/core", e.nps/1000)
	for i, threshold := range uncertaintyMarkers {
		if e.uncertainty <= threshold {
			break
		}
		if i == 0 {
			b.WriteString(" ")
		}
		b.WriteString("?")
	}
	return b.String()
}
