// Package matcher decides whether an upstream patch already exists in
// a downstream window under a different commit identity, using a
// confidence-weighted combination of similarity signals.
package matcher

import "patchmon/internal/config"

// Signals holds the five normalized similarity measurements for one
// (upstream, downstream) patch pair, each in [0, 1]
type Signals struct {
	Author      float64
	Content     float64
	Description float64
	Filenames   float64
	Time        float64
}

// Weights is the per-family trust placed in each signal. One named
// field per signal: a positional vector here once let a reordered
// signal silently score against the wrong weight.
type Weights struct {
	Author      float64
	Content     float64
	Description float64
	Filenames   float64
	Time        float64
}

// WeightsFromConfig converts a config weight vector
func WeightsFromConfig(cfg config.ConfidenceConfig) Weights {
	return Weights{
		Author:      cfg.Author,
		Content:     cfg.Content,
		Description: cfg.Description,
		Filenames:   cfg.Filenames,
		Time:        cfg.Time,
	}
}

// Score is the dot product of weights and signals. For weights summing
// to 1 and signals in [0,1] the result is in [0,1]; a one-hot weight
// vector reduces it to exactly that signal.
func (w Weights) Score(s Signals) float64 {
	return w.Author*s.Author +
		w.Content*s.Content +
		w.Description*s.Description +
		w.Filenames*s.Filenames +
		w.Time*s.Time
}
