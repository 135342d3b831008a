package session

import (
	"sync"

	"github.com/samber/lo"

	"github.com/hitolab/gdflow/types"
)

// Roster holds the fixed set of participants for one session and owns
// all role state. Participants never join or leave mid-session; roles
// are claimed at most once, first claim wins.
type Roster struct {
	mu      sync.RWMutex
	ordered []*types.Participant
	byID    map[string]*types.Participant
	roles   map[types.Role]string // role -> participant ID
}

// NewRoster builds a roster from the facilitator and the AI personas.
// Order is preserved and used wherever a stable participant order
// matters (intro round, prompts, reports).
func NewRoster(human *types.Participant, personas ...*types.Participant) *Roster {
	r := &Roster{
		byID:  make(map[string]*types.Participant, len(personas)+1),
		roles: make(map[types.Role]string),
	}
	all := append([]*types.Participant{human}, personas...)
	for _, p := range all {
		r.ordered = append(r.ordered, p)
		r.byID[p.ID] = p
	}
	return r
}

// Human returns the facilitator.
func (r *Roster) Human() *types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.ordered {
		if p.IsHuman() {
			return p
		}
	}
	return nil
}

// AIs returns the AI personas in roster order.
func (r *Roster) AIs() []*types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.ordered, func(p *types.Participant, _ int) bool {
		return !p.IsHuman()
	})
}

// All returns every participant in roster order.
func (r *Roster) All() []*types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Participant, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByID looks up a participant.
func (r *Roster) ByID(id string) (*types.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Names returns every participant ID in roster order. Used to validate
// names coming back from the mention judge.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.ordered, func(p *types.Participant, _ int) string { return p.ID })
}

// ClaimRole assigns a role to a participant if the role is still open
// and the participant holds no role yet. Returns true only for the
// claim that actually took effect; a repeat claim by the current holder
// reports false without changing state.
func (r *Roster) ClaimRole(role types.Role, participantID string) bool {
	if role == types.RoleNone {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[participantID]
	if !ok || p.AssignedRole != types.RoleNone {
		return false
	}
	if _, taken := r.roles[role]; taken {
		return false
	}
	r.roles[role] = participantID
	p.AssignedRole = role
	return true
}

// RoleHolder returns the participant holding a role, if claimed.
func (r *Roster) RoleHolder(role types.Role) (*types.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.roles[role]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}
