package lexicon

import (
	"fmt"
	"math"
)

// Params are the tunables that learning and generation read on every call.
type Params struct {
	// CocategorizeRatio is the share of instance pairs that must coincide
	// before two categories are linked.
	CocategorizeRatio float64
	// TravelDistance is the number of extra cocategory hops applied to each
	// non-seed position of a drifted utterance.
	TravelDistance int
	// CocategorizeMagnitude is the number of random category pairs tested per think step.
	CocategorizeMagnitude int

	ForwardEdgeDistance  int
	BackwardEdgeDistance int
	ForwardWordDistance  int
	BackwardWordDistance int

	// MaxWalk caps how many instances a generated utterance may grow by in
	// each direction from its seed.
	MaxWalk int
}

// DefaultParams returns the tuning seifmios starts with.
func DefaultParams() Params {
	return Params{
		CocategorizeRatio:     0.4,
		TravelDistance:        0,
		CocategorizeMagnitude: 1024,
		ForwardEdgeDistance:   1,
		BackwardEdgeDistance:  1,
		ForwardWordDistance:   1,
		BackwardWordDistance:  1,
		MaxWalk:               256,
	}
}

// Validate rejects values the algorithms cannot run with.
func (p Params) Validate() error {
	if math.IsNaN(p.CocategorizeRatio) || math.IsInf(p.CocategorizeRatio, 0) {
		return fmt.Errorf("cocategorize ratio must be finite, got %v", p.CocategorizeRatio)
	}
	if p.CocategorizeRatio < 0 {
		return fmt.Errorf("cocategorize ratio must not be negative, got %v", p.CocategorizeRatio)
	}
	if p.TravelDistance < 0 {
		return fmt.Errorf("travel distance must not be negative, got %d", p.TravelDistance)
	}
	if p.CocategorizeMagnitude < 0 {
		return fmt.Errorf("cocategorize magnitude must not be negative, got %d", p.CocategorizeMagnitude)
	}
	for name, v := range map[string]int{
		"forward edge distance":  p.ForwardEdgeDistance,
		"backward edge distance": p.BackwardEdgeDistance,
		"forward word distance":  p.ForwardWordDistance,
		"backward word distance": p.BackwardWordDistance,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if p.MaxWalk < 1 {
		return fmt.Errorf("max walk must be at least 1, got %d", p.MaxWalk)
	}
	return nil
}
