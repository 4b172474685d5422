// Package analysis turns measurements collected from several runs or several
// windows into statistical summaries.
package analysis

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewValues is returned when a sample is too small to estimate its
// variance.
var ErrTooFewValues = errors.New("too few values")

// Interval is a two-sided Student-t confidence interval of a mean.
type Interval struct {
	Mean      float64 `json:"mean"`
	HalfWidth float64 `json:"half_width"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`

	// RelativeWidth is the full width divided by the mean. It is 0 when the
	// mean is 0.
	RelativeWidth float64 `json:"relative_width"`
}

// Width returns High - Low.
func (i Interval) Width() float64 {
	return i.High - i.Low
}

// ConfidenceInterval estimates the interval that contains the true mean of
// values with probability level. Values with no spread give an interval of
// zero width.
func ConfidenceInterval(values []float64, level float64) (Interval, error) {
	if !(level > 0 && level < 1) {
		return Interval{}, errors.Newf("confidence level %g not in (0, 1)",
			level)
	}

	n := len(values)
	if n < 2 {
		return Interval{}, errors.Wrapf(ErrTooFewValues, "%d values", n)
	}

	mean, std := stat.MeanStdDev(values, nil)
	sem := std / math.Sqrt(float64(n))

	halfWidth := 0.0
	if sem != 0 {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
		halfWidth = t.Quantile(0.5+level/2) * sem
	}

	interval := Interval{
		Mean:      mean,
		HalfWidth: halfWidth,
		Low:       mean - halfWidth,
		High:      mean + halfWidth,
	}

	if mean != 0 {
		interval.RelativeWidth = interval.Width() / mean
	}

	return interval, nil
}

// BatchIntervals splits values into consecutive batches of the given size and
// computes the confidence interval of each. The trailing values that would
// form the last batch, complete or not, are left out.
func BatchIntervals(
	values []float64,
	batch int,
	level float64,
) ([]Interval, error) {
	if batch < 2 {
		return nil, errors.Wrapf(ErrTooFewValues, "batch size %d", batch)
	}

	intervals := make([]Interval, 0)

	for i := 0; i < len(values)-batch; i += batch {
		interval, err := ConfidenceInterval(values[i:i+batch], level)
		if err != nil {
			return nil, err
		}

		intervals = append(intervals, interval)
	}

	return intervals, nil
}
