package index

import "sync/atomic"

// Published holds the generation currently served to queries. Readers take
// a snapshot with Current and keep using it for the whole query.
type Published struct {
	cur atomic.Pointer[Generation]
}

func NewPublished() *Published {
	return &Published{}
}

// Current returns the served generation, or nil before the first publish.
func (p *Published) Current() *Generation {
	return p.cur.Load()
}

// Swap makes g current and returns the generation it replaced.
func (p *Published) Swap(g *Generation) *Generation {
	return p.cur.Swap(g)
}

// PublishIfEmpty makes g current only when nothing has been published yet.
func (p *Published) PublishIfEmpty(g *Generation) bool {
	return p.cur.CompareAndSwap(nil, g)
}
