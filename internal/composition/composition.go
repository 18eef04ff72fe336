// Package composition keeps the ordered list of picked clips, enforces which
// clips may sit at either end, and recomputes auto-trim suggestions between
// neighbours.
package composition

import (
	"slices"

	"github.com/trajcut/trajcut-agent/internal/clip"
)

// SuggestionMargin is how many sampled-percent steps a suggested cut must
// leave after the stabilized trim start.
const SuggestionMargin = 5

// Registry resolves slugs to clips. The composition only stores slugs.
type Registry interface {
	Get(slug string) (*clip.State, bool)
	Library() []string
}

// Composition is the picked clip order.
type Composition struct {
	order []string
}

// New returns an empty composition.
func New() *Composition {
	return &Composition{}
}

// Order returns a copy of the picked slugs.
func (c *Composition) Order() []string {
	return slices.Clone(c.order)
}

func (c *Composition) Len() int {
	return len(c.order)
}

// Contains reports whether slug is picked.
func (c *Composition) Contains(slug string) bool {
	return slices.Contains(c.order, slug)
}

func canLead(reg Registry, slug string) bool {
	s, ok := reg.Get(slug)
	return ok && s.CanLead()
}

func canFollow(reg Registry, slug string) bool {
	s, ok := reg.Get(slug)
	return ok && s.CanFollow()
}

// Insert adds slug where its neighbours allow and reports whether it did.
// An empty composition takes any clip.
func (c *Composition) Insert(reg Registry, slug string) bool {
	if _, ok := reg.Get(slug); !ok || c.Contains(slug) {
		return false
	}

	follow, lead := canFollow(reg, slug), canLead(reg, slug)
	n := len(c.order)

	switch {
	case n == 0:
		c.order = []string{slug}
	case !follow && !lead:
		return false
	case follow && !lead:
		if !canLead(reg, c.order[n-1]) {
			return false
		}
		c.order = append(c.order, slug)
	case lead && !follow:
		if !canFollow(reg, c.order[0]) {
			return false
		}
		c.order = slices.Insert(c.order, 0, slug)
	default:
		if canLead(reg, c.order[n-1]) {
			c.order = append(c.order, slug)
		} else {
			c.order = slices.Insert(c.order, n-1, slug)
		}
	}

	c.Propagate(reg)
	return true
}

// Reorder moves the clip at oldIndex to newIndex. The head may only leave
// if it can follow others and the tail only if it can lead; a clip may only
// displace the head or tail if the displaced clip allows it. A rejected
// move changes nothing.
func (c *Composition) Reorder(reg Registry, oldIndex, newIndex int) bool {
	n := len(c.order)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return false
	}
	if oldIndex == newIndex {
		return true
	}

	last := n - 1
	if oldIndex == 0 && !canFollow(reg, c.order[0]) {
		return false
	}
	if oldIndex == last && !canLead(reg, c.order[last]) {
		return false
	}
	if newIndex == 0 && !canFollow(reg, c.order[0]) {
		return false
	}
	if newIndex == last && !canLead(reg, c.order[last]) {
		return false
	}

	item := c.order[oldIndex]
	c.order = slices.Delete(c.order, oldIndex, oldIndex+1)
	c.order = slices.Insert(c.order, newIndex, item)

	c.Propagate(reg)
	return true
}

// Remove drops slug from the composition. A clip the user never edited gets
// its stabilized trim back to the full range.
func (c *Composition) Remove(reg Registry, slug string) bool {
	i := slices.Index(c.order, slug)
	if i < 0 {
		return false
	}
	if s, ok := reg.Get(slug); ok && !s.IsEditedByUser {
		s.ResetStabilizedTrim()
	}
	c.order = slices.Delete(c.order, i, i+1)

	c.Propagate(reg)
	return true
}

// Replace sets the whole order, dropping unknown and repeated slugs.
func (c *Composition) Replace(reg Registry, slugs []string) {
	order := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if _, ok := reg.Get(slug); !ok || slices.Contains(order, slug) {
			continue
		}
		order = append(order, slug)
	}
	c.order = order

	c.Propagate(reg)
}

// Propagate recomputes suggestion flags across the picked clips. Within the
// composition a suggested pair gets tentative stabilized trims; past the
// tail, library clips that would make a good next pick are flagged.
func (c *Composition) Propagate(reg Registry) {
	for _, slug := range reg.Library() {
		if s, ok := reg.Get(slug); ok {
			s.IsSuggestedNext = false
		}
	}

	for i := 0; i+1 < len(c.order); i++ {
		cur, ok1 := reg.Get(c.order[i])
		next, ok2 := reg.Get(c.order[i+1])
		if !ok1 || !ok2 {
			continue
		}
		propagatePair(cur, next)
	}

	if len(c.order) > 0 {
		if tail, ok := reg.Get(c.order[len(c.order)-1]); ok {
			c.flagNextPicks(reg, tail)
		}
	}
}

func propagatePair(cur, next *clip.State) {
	if cur.IsEditedByUser || next.IsEditedByUser {
		cur.IsSuggestedToStabilize = false
		next.IsSuggestedToStabilize = false
		return
	}

	if !slices.Contains(cur.SuggestedNextClips, next.Slug) {
		next.IsSuggestedToStabilize = false
		return
	}

	trim, ok := cur.TrimSuggestionForNext[next.Slug]
	if !ok || !cur.IsStabilizable || trim[0]-SuggestionMargin <= cur.StabTrimStart {
		next.IsSuggestedToStabilize = false
		return
	}

	// Both stabilized windows must stay at least MinTrimWidth wide.
	end := clampIndex(trim[0], cur)
	start := clampIndex(trim[1], next)
	if end-cur.StabTrimStart < clip.MinTrimWidth ||
		(next.IsStabilizable && next.StabTrimEnd-start < clip.MinTrimWidth) {
		next.IsSuggestedToStabilize = false
		return
	}

	cur.IsSuggestedToStabilize = true
	cur.StabTrimEnd = end
	if next.IsStabilizable {
		next.IsSuggestedToStabilize = true
		next.StabTrimStart = start
	}
}

func (c *Composition) flagNextPicks(reg Registry, tail *clip.State) {
	if !tail.BeforeOthersOK {
		return
	}
	for _, slug := range tail.SuggestedNextClips {
		cand, ok := reg.Get(slug)
		if !ok || cand.IsEditedByUser || c.Contains(slug) {
			continue
		}
		trim, ok := tail.TrimSuggestionForNext[slug]
		if !ok || trim[0] <= tail.StabTrimStart+SuggestionMargin {
			continue
		}
		cand.IsSuggestedNext = true
	}
}

// clampIndex keeps a server-suggested index inside the clip's grid.
func clampIndex(i int, s *clip.State) int {
	return max(0, min(i, s.LastIndex()))
}
