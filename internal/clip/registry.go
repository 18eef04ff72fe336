package clip

// Registry owns every clip of an open project, keyed by slug, plus the
// library display order. The composite clip is held apart from the library.
type Registry struct {
	clips     map[string]*State
	order     []string
	composite *State
}

// NewRegistry builds a registry from library clips in display order and
// the composite clip.
func NewRegistry(library []*State, composite *State) *Registry {
	r := &Registry{
		clips:     make(map[string]*State, len(library)+1),
		order:     make([]string, 0, len(library)),
		composite: composite,
	}
	for _, c := range library {
		if _, dup := r.clips[c.Slug]; dup {
			continue
		}
		r.clips[c.Slug] = c
		r.order = append(r.order, c.Slug)
	}
	if composite != nil {
		r.clips[composite.Slug] = composite
	}
	return r
}

// Get returns the clip for slug, including the composite.
func (r *Registry) Get(slug string) (*State, bool) {
	c, ok := r.clips[slug]
	return c, ok
}

// Composite returns the synthetic concatenation clip.
func (r *Registry) Composite() *State {
	return r.composite
}

// Library returns the library slugs in display order.
func (r *Registry) Library() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len is the number of library clips.
func (r *Registry) Len() int {
	return len(r.order)
}

// ReorderLibrary moves the library entry at from to to. It reports false
// for out-of-range indices.
func (r *Registry) ReorderLibrary(from, to int) bool {
	if from < 0 || from >= len(r.order) || to < 0 || to >= len(r.order) {
		return false
	}
	if from == to {
		return true
	}
	r.order = move(r.order, from, to)
	return true
}

// Each calls fn for every library clip in order, then the composite.
func (r *Registry) Each(fn func(*State)) {
	for _, slug := range r.order {
		fn(r.clips[slug])
	}
	if r.composite != nil {
		fn(r.composite)
	}
}

func move(s []string, from, to int) []string {
	item := s[from]
	out := make([]string, 0, len(s))
	out = append(out, s[:from]...)
	out = append(out, s[from+1:]...)
	out = append(out[:to], append([]string{item}, out[to:]...)...)
	return out
}
