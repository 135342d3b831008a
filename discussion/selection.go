package discussion

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/types"
)

// Selector decides which personas react to an utterance. Admission is
// probabilistic per persona, scaled down as the reaction chain deepens
// so chains thin out instead of snowballing.
type Selector struct {
	cfg config.DiscussionConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector with a seeded RNG.
func NewSelector(cfg config.DiscussionConfig, seed int64) *Selector {
	return &Selector{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (s *Selector) decay(depth int) float64 {
	if depth == 0 {
		return s.cfg.DepthDecayTop
	}
	return s.cfg.DepthDecayDeep
}

func (s *Selector) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// SelectRespondents picks reacting personas from candidates. Mentioned
// participants are admitted outright; the rest are admitted with
// probability activity*decay(depth). The set is capped at
// max(1, maxDepth-depth), mentioned kept ahead of volunteers, and when
// nobody is in on a shallow chain the most active candidate is
// admitted anyway so the room never goes dead mid-discussion. The
// returned order is activity-descending, roster order as tie-break.
func (s *Selector) SelectRespondents(candidates []*types.Participant, mentioned []string, chain types.ReactionChainContext) []*types.Participant {
	if len(candidates) == 0 || chain.Exhausted() {
		return nil
	}
	decay := s.decay(chain.Depth)

	named := lo.Filter(candidates, func(p *types.Participant, _ int) bool {
		return lo.Contains(mentioned, p.ID)
	})
	volunteers := lo.Filter(candidates, func(p *types.Participant, _ int) bool {
		return !lo.Contains(mentioned, p.ID) && s.roll() < p.Persona.ActivityLevel*decay
	})

	if len(named)+len(volunteers) == 0 {
		if chain.Depth < s.cfg.MaxChainDepth-1 {
			return []*types.Participant{mostActive(candidates)}
		}
		return nil
	}

	limit := s.cfg.MaxChainDepth - chain.Depth
	if limit < 1 {
		limit = 1
	}
	sortByActivity(named)
	sortByActivity(volunteers)
	admitted := append(named, volunteers...)
	if len(admitted) > limit {
		admitted = admitted[:limit]
	}
	sortByActivity(admitted)
	return admitted
}

// SelectInitiator picks the persona that breaks a silence: a coin per
// persona at its raw activity level, the most active volunteer wins,
// and the most active persona overall is forced in when nobody
// volunteers.
func (s *Selector) SelectInitiator(candidates []*types.Participant) *types.Participant {
	if len(candidates) == 0 {
		return nil
	}
	volunteers := lo.Filter(candidates, func(p *types.Participant, _ int) bool {
		return s.roll() < p.Persona.ActivityLevel
	})
	if len(volunteers) == 0 {
		return mostActive(candidates)
	}
	return mostActive(volunteers)
}

// HumanReentry reports whether to pause and offer the turn back to the
// facilitator before the personas react.
func (s *Selector) HumanReentry(chain types.ReactionChainContext) bool {
	if chain.Depth >= s.cfg.MaxChainDepth-1 {
		return false
	}
	return s.roll() < s.decay(chain.Depth)*s.cfg.HumanReentryFactor
}

func mostActive(candidates []*types.Participant) *types.Participant {
	return lo.MaxBy(candidates, func(a, b *types.Participant) bool {
		return a.Persona.ActivityLevel > b.Persona.ActivityLevel
	})
}

func sortByActivity(ps []*types.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Persona.ActivityLevel > ps[j].Persona.ActivityLevel
	})
}
