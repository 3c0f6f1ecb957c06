package acuity

// Weights are the graded penalties for over- and under-triage. The
// asymmetry encodes that erring toward higher acuity is safer than
// erring toward lower acuity. They are policy choices, kept tunable;
// the Emergency hard floor is not.
type Weights struct {
	OverTriage  float64
	UnderTriage float64
}

// DefaultWeights are the stock over/under-triage penalties.
func DefaultWeights() Weights {
	return Weights{OverTriage: 0.7, UnderTriage: 0.3}
}

// Score rates a (gold, predicted) pair in [0,1].
//
// A missed Emergency always scores 0.0 regardless of the weights.
// An exact match scores 1.0. Otherwise over-triage scores
// w.OverTriage and under-triage scores w.UnderTriage.
func (w Weights) Score(gold, predicted Level) float64 {
	// zero-tolerance clause: never reward downgrading a true emergency
	if gold == Emergency && predicted != Emergency {
		return 0.0
	}
	if predicted == gold {
		return 1.0
	}
	if predicted.MoreSevereThan(gold) {
		return w.OverTriage
	}
	return w.UnderTriage
}

// Score rates a (gold, predicted) pair with the default weights.
func Score(gold, predicted Level) float64 {
	return DefaultWeights().Score(gold, predicted)
}
