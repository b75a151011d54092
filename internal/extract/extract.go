// Package extract pulls a download percentage and size out of a device UI
// snapshot. Play Store layouts drift between versions, so extraction is an
// ordered list of independent strategies; the first one that yields a
// percent wins.
package extract

import "fmt"

// Reading is the result of one extraction pass. A nil Percent means no
// signal was found in this snapshot.
type Reading struct {
	Percent  *int
	Size     string
	Strategy string
}

// Found reports whether the reading carries a percent.
func (r Reading) Found() bool {
	return r.Percent != nil
}

// Value returns the percent, or -1 when none was found.
func (r Reading) Value() int {
	if r.Percent == nil {
		return -1
	}
	return *r.Percent
}

func (r Reading) String() string {
	switch {
	case r.Percent == nil:
		return "no reading"
	case r.Size != "":
		return fmt.Sprintf("%d%% of %s", *r.Percent, r.Size)
	default:
		return fmt.Sprintf("%d%%", *r.Percent)
	}
}

// Strategy is one way of reading progress out of a snapshot. Match returns
// ok=false when the strategy does not apply.
type Strategy struct {
	Name  string
	Match func(snapshot string) (Reading, bool)
}

// Pipeline evaluates strategies in priority order.
type Pipeline struct {
	strategies []Strategy
}

// NewPipeline builds a pipeline over the given strategies. With no
// arguments it uses DefaultStrategies.
func NewPipeline(strategies ...Strategy) *Pipeline {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Pipeline{strategies: strategies}
}

// Strategies returns the strategy names in evaluation order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract runs the strategies against snapshot and returns the first match.
// An empty Reading means "try again next tick"; it is not an error.
func (p *Pipeline) Extract(snapshot string) Reading {
	if snapshot == "" {
		return Reading{}
	}
	for _, s := range p.strategies {
		r, ok := s.Match(snapshot)
		if !ok || r.Percent == nil {
			continue
		}
		r.Strategy = s.Name
		return r
	}
	return Reading{}
}

func intPtr(v int) *int {
	return &v
}
