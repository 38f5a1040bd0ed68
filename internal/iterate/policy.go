package iterate

// PolicyConfig controls when the round loop stops.
type PolicyConfig struct {
	MaxRounds int
	// MinImprovement is the mean score gain below which a round counts
	// as stagnant.
	MinImprovement float64
	// StagnantRounds is how many consecutive stagnant rounds trigger
	// convergence.
	StagnantRounds int
}

func (c PolicyConfig) withDefaults() PolicyConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 5
	}
	if c.MinImprovement <= 0 {
		c.MinImprovement = 0.01
	}
	if c.StagnantRounds <= 0 {
		c.StagnantRounds = 1
	}
	return c
}

// Policy evaluates convergence after each round. One Policy instance
// belongs to one session's round loop.
type Policy struct {
	cfg      PolicyConfig
	rounds   int
	stagnant int
}

func NewPolicy(cfg PolicyConfig) *Policy {
	return &Policy{cfg: cfg.withDefaults()}
}

// Observe records a completed round's score movement and reports whether
// the loop should stop, with a short reason.
func (p *Policy) Observe(prevMean, newMean float64) (stop bool, reason string) {
	p.rounds++
	if newMean-prevMean < p.cfg.MinImprovement {
		p.stagnant++
	} else {
		p.stagnant = 0
	}
	if p.stagnant >= p.cfg.StagnantRounds {
		return true, "converged"
	}
	if p.rounds >= p.cfg.MaxRounds {
		return true, "max_rounds"
	}
	return false, ""
}

// Rounds is how many rounds have been observed.
func (p *Policy) Rounds() int { return p.rounds }
