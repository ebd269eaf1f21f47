// Package score maps raw utterance-level GOP aggregates onto a bounded
// pronunciation quality scale with discrete grade labels.
//
// GOP interpretation: a positive value means the canonical phone had the
// highest probability, zero means it tied with the best competitor, and a
// negative value means another phone scored higher.
package score

import (
	"gopscore/pkg/aggregate"
)

// Default score bounds.
const (
	DefaultMinScore = 0.0
	DefaultMaxScore = 100.0
)

// Grade is the discrete quality label assigned from the final score.
type Grade string

const (
	GradeExcellent        Grade = "Excellent"
	GradeGood             Grade = "Good"
	GradeFair             Grade = "Fair"
	GradeNeedsImprovement Grade = "Needs Improvement"
	GradePoor             Grade = "Poor"
)

// GradeFor assigns the grade for a final clamped quality score. Thresholds
// are fixed on the canonical 0-100 scale regardless of configured bounds.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 80:
		return GradeGood
	case score >= 70:
		return GradeFair
	case score >= 60:
		return GradeNeedsImprovement
	default:
		return GradePoor
	}
}

// Result is the terminal, per-utterance scoring record.
type Result struct {
	UtteranceID        string
	GOPScore           float64
	PronunciationScore float64
	NumPhones          int
	Grade              Grade
}

// Mapper converts raw GOP aggregates to quality scores. When Baseline is
// set, raw values are calibrated against that native-speaker reference;
// otherwise the direct mapping applies. The two curves are separate pure
// functions and this choice is the only branching between them.
type Mapper struct {
	Baseline *float64
	MinScore float64
	MaxScore float64
}

// NewMapper returns a Mapper with the default 0-100 bounds.
func NewMapper(baseline *float64) Mapper {
	return Mapper{
		Baseline: baseline,
		MinScore: DefaultMinScore,
		MaxScore: DefaultMaxScore,
	}
}

// Score maps one raw GOP value to the bounded quality scale.
func (m Mapper) Score(raw float64) float64 {
	var s float64
	if m.Baseline != nil {
		s = baselineScore(raw-*m.Baseline, m.MinScore, m.MaxScore)
	} else {
		s = directScore(raw, m.MinScore)
	}
	return clamp(s, m.MinScore, m.MaxScore)
}

// Normalize converts one aggregate into the terminal scoring record.
func (m Mapper) Normalize(agg aggregate.Result) Result {
	s := m.Score(agg.Score)
	return Result{
		UtteranceID:        agg.UtteranceID,
		GOPScore:           agg.Score,
		PronunciationScore: s,
		NumPhones:          agg.NumPhones,
		Grade:              GradeFor(s),
	}
}

// baselineScore calibrates against a native-speaker reference: diff=0 maps
// to the top of the scale, diff=-5 to 50, and the curve bottoms out at
// minScore. Adjoining branches agree at every breakpoint.
func baselineScore(diff, minScore, maxScore float64) float64 {
	switch {
	case diff >= 0:
		return maxScore
	case diff >= -2:
		return maxScore + (diff/2)*10 // 100 down to 90
	case diff >= -5:
		return 90 + ((diff+2)/3)*40 // 90 down to 50
	default:
		return max(50+((diff+5)/5)*50, minScore) // 50 down to 0
	}
}

// directScore maps raw GOP without a baseline. Non-negative GOP lands in
// the 90-100 band; each unit below zero drops through progressively wider
// bands. The bands meet at 0 and -3 but the curve jumps downward entering
// the band below -1 and upward below -5; the jumps are fixed behavior.
func directScore(raw, minScore float64) float64 {
	switch {
	case raw >= 0:
		return 90 + min(raw*2, 10) // 90 up to 100
	case raw >= -1:
		return 80 + (raw+1)*10 // 80 up to 90
	case raw >= -3:
		return 60 + ((raw+1)/2)*20 // 60 up to 80
	case raw >= -5:
		return 40 + ((raw+3)/2)*20 // 40 up to 60
	default:
		return max(40+((raw+5)/5)*40, minScore) // 0 up to 40
	}
}

// PhoneQuality labels a single phone's raw GOP value for interactive
// inspection. These bands are coarser than the utterance grades and are
// display-only.
func PhoneQuality(gop float64) string {
	switch {
	case gop > 0:
		return "Excellent"
	case gop > -1:
		return "Good"
	case gop > -3:
		return "Fair"
	case gop > -5:
		return "Poor"
	default:
		return "Very Poor"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
