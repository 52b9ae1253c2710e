package insights

import (
	"math"
	"sort"
)

// =============================================================================
// ANOMALY DETECTION - mean + k * sigma over entity aggregates
// =============================================================================

const (
	DefaultSigma     = 2.0
	DefaultFlagLimit = 3
)

// DetectOptions tunes the detector. Zero values take the defaults.
type DetectOptions struct {
	Sigma float64
	Limit int
}

func (o DetectOptions) withDefaults() DetectOptions {
	if o.Sigma <= 0 {
		o.Sigma = DefaultSigma
	}
	if o.Limit <= 0 {
		o.Limit = DefaultFlagLimit
	}
	return o
}

// Detection is the detector output together with the statistics it used.
type Detection struct {
	Mean      float64
	StdDev    float64
	Threshold float64
	Flags     []AnomalyFlag
}

// Detect flags aggregates whose total is strictly above
// mean + Sigma * population-stddev of all aggregate totals.
//
// Flagging happens before truncation: an aggregate must exceed the threshold
// and rank within the top Limit by total to be returned. Ties on total are
// ordered by entity then category.
//
// With fewer than two aggregates, or all totals equal, the stddev is zero and
// the threshold equals the mean. No total can be strictly above its own mean
// in that case, so such inputs always yield zero flags.
func Detect(aggs []EntityTotal, opts DetectOptions) Detection {
	opts = opts.withDefaults()
	d := Detection{Flags: []AnomalyFlag{}}
	if len(aggs) == 0 {
		return d
	}

	var sum float64
	for _, a := range aggs {
		sum += float64(a.Total)
	}
	d.Mean = sum / float64(len(aggs))

	var sq float64
	for _, a := range aggs {
		diff := float64(a.Total) - d.Mean
		sq += diff * diff
	}
	d.StdDev = math.Sqrt(sq / float64(len(aggs)))
	d.Threshold = d.Mean + opts.Sigma*d.StdDev

	for _, a := range aggs {
		if float64(a.Total) > d.Threshold {
			d.Flags = append(d.Flags, AnomalyFlag{
				Entity:   a.Entity,
				Category: a.Category,
				Total:    a.Total,
				Message:  AdvisoryMessage,
			})
		}
	}

	sort.SliceStable(d.Flags, func(i, j int) bool {
		fi, fj := d.Flags[i], d.Flags[j]
		if fi.Total != fj.Total {
			return fi.Total > fj.Total
		}
		if fi.Entity != fj.Entity {
			return fi.Entity < fj.Entity
		}
		return fi.Category.order() < fj.Category.order()
	})
	if len(d.Flags) > opts.Limit {
		d.Flags = d.Flags[:opts.Limit]
	}
	return d
}
