package core

import (
	"time"

	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
)

// SweepPolicy selects a category and the age after which its entities go.
type SweepPolicy struct {
	Category model.Category
	MaxAge   time.Duration
	// Fade linearly lowers alpha from BaseAlpha to zero across MaxAge.
	Fade      bool
	BaseAlpha float64
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Removed int
	Faded   int
}

// FadeAlpha is the displayed alpha of an entity elapsed into a window of
// maxAge. It is a pure function of its inputs so repeated sweeps never
// compound.
func FadeAlpha(base float64, elapsed, maxAge time.Duration) float64 {
	if maxAge <= 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	a := base * (1 - float64(elapsed)/float64(maxAge))
	if a < 0 {
		return 0
	}
	return a
}

// Sweep removes entities of p.Category older than p.MaxAge and, in fade
// mode, sets the alpha of the rest from their creation time.
func Sweep(tx *kb.Tx, now time.Time, p SweepPolicy) SweepResult {
	var res SweepResult
	for _, e := range tx.Entities() {
		if e.Category() != p.Category {
			continue
		}
		elapsed := now.Sub(e.Timestamp())
		if p.MaxAge <= 0 || elapsed > p.MaxAge {
			if tx.Remove(e) {
				res.Removed++
			}
			continue
		}
		if p.Fade {
			e.SetAlpha(FadeAlpha(p.BaseAlpha, elapsed, p.MaxAge))
			res.Faded++
		}
	}
	return res
}
