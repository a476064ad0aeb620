package density

import "fmt"

// PotentialUpdater wraps a mutable potentials vector. Potentials only ever
// decrease and are clamped at zero.
type PotentialUpdater struct {
	potentials []float64
}

// NewPotentialUpdater wraps potentials without copying them.
func NewPotentialUpdater(potentials []float64) *PotentialUpdater {
	return &PotentialUpdater{potentials: potentials}
}

// Potential returns the potential at idx.
func (u *PotentialUpdater) Potential(idx int) float64 {
	return u.potentials[idx]
}

// DecreasePotential lowers the potential at idx by decrement, never below 0.
func (u *PotentialUpdater) DecreasePotential(idx int, decrement float64) {
	if !(decrement >= 0) {
		panic(fmt.Sprintf("density: the decrement must be >= 0 but was %v", decrement))
	}
	u.potentials[idx] = max(0, u.potentials[idx]-decrement)
}

// Len returns the number of potentials.
func (u *PotentialUpdater) Len() int { return len(u.potentials) }
