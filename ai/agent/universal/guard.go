package universal

// IterationGuard counts loop iterations against a fixed cap. It belongs to a
// single run and is only advanced by that run's step function.
type IterationGuard struct {
	count int
	max   int
}

// NewIterationGuard returns a guard allowing max iterations. Negative values
// are treated as zero.
func NewIterationGuard(max int) *IterationGuard {
	if max < 0 {
		max = 0
	}
	return &IterationGuard{max: max}
}

// Step records one completed iteration.
func (g *IterationGuard) Step() {
	g.count++
}

// Exhausted reports whether the cap has been reached.
func (g *IterationGuard) Exhausted() bool {
	return g.count >= g.max
}

// Count returns the number of completed iterations.
func (g *IterationGuard) Count() int {
	return g.count
}

// Max returns the cap.
func (g *IterationGuard) Max() int {
	return g.max
}

// Remaining returns how many iterations are left.
func (g *IterationGuard) Remaining() int {
	if g.count >= g.max {
		return 0
	}
	return g.max - g.count
}
