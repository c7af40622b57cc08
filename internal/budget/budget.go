// Package budget implements the cost/budget manager: per-call USD spend
// tracked against a total, in hard or suggested mode, plus per-daypart
// budget allocation, per spec.md §4.3.
package budget

import (
	"fmt"
	"sync"

	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/model"
)

// Mode selects whether reservations can be refused.
type Mode string

const (
	ModeHard      Mode = "hard"
	ModeSuggested Mode = "suggested"
)

// Strategy selects how allocate() divides the budget across dayparts.
type Strategy string

const (
	StrategyEqual   Strategy = "equal"
	StrategyDynamic Strategy = "dynamic"
	StrategyWeighted Strategy = "weighted"
)

// Weight multipliers for the dynamic allocation strategy, per spec.md §4.3.
// These are the specification's own normative defaults (see DESIGN.md open
// question resolution), not values measured from any source system.
const (
	dynamicDurationWeight  = 1.0
	dynamicGenreWeight     = 0.3
	dynamicBPMWindowWeight = 0.2
	dynamicSpecialtyWeight = 0.5
)

// DaypartWeightInput carries the fields the dynamic strategy weighs.
type DaypartWeightInput struct {
	DaypartID         string
	DurationHours     float64
	GenreCount        int
	BPMSubWindowCount int
	HasSpecialty      bool
}

// Manager tracks reservations and recorded spend against a total budget. It
// is not safe for concurrent use from more than one goroutine without its
// own mutex — which it has, matching spec.md §5's note that the budget
// manager's reserve/record must be atomic with respect to the event loop
// even though the core is otherwise single-threaded.
type Manager struct {
	mu       sync.Mutex
	total    model.Money
	reserved model.Money
	recorded model.Money
	mode     Mode
}

// New creates a Manager for total in the given mode.
func New(total model.Money, mode Mode) *Manager {
	return &Manager{total: total, mode: mode}
}

// Mode returns the manager's budget mode.
func (m *Manager) Mode() Mode {
	return m.mode
}

// Reserve attempts to reserve amount against the remaining budget. In hard
// mode it refuses (returns false) once the reservation would exceed the
// total; in suggested mode it always succeeds, logging a warning on overrun.
func (m *Manager) Reserve(amount model.Money) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	prospective := m.reserved.Add(amount)
	overBudget := prospective.Cmp(m.total) > 0

	if overBudget && m.mode == ModeHard {
		return false
	}
	m.reserved = prospective
	if overBudget && m.mode == ModeSuggested {
		logger.Warn("budget reservation exceeds total, continuing in suggested mode", logger.Fields{
			"amount": amount.String(),
			"total":  m.total.String(),
		})
	}
	return true
}

// Record posts actually-incurred spend. Always allowed: in suggested mode
// this is how an overrun becomes visible in accounting.
func (m *Manager) Record(amount model.Money, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = m.recorded.Add(amount)
	_ = reason // carried by the caller's decision log entry, not stored here
}

// Remaining returns total - reserved. Can go negative in suggested mode.
func (m *Manager) Remaining() model.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total.Sub(m.reserved)
}

// Recorded returns the cumulative amount actually recorded so far.
func (m *Manager) Recorded() model.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorded
}

// Allocate divides the budget across dayparts per strategy. explicitWeights
// is only consulted for StrategyWeighted (a fraction per daypart id,
// re-normalised to sum to 1); it is ignored otherwise.
func (m *Manager) Allocate(strategy Strategy, dayparts []DaypartWeightInput, explicitWeights map[string]float64) (map[string]model.Money, error) {
	if len(dayparts) == 0 {
		return map[string]model.Money{}, nil
	}

	switch strategy {
	case StrategyEqual:
		shares := m.Remaining().DivideEvenly(len(dayparts))
		out := make(map[string]model.Money, len(dayparts))
		for i, d := range dayparts {
			out[d.DaypartID] = shares[i]
		}
		return out, nil

	case StrategyDynamic:
		weights := make(map[string]float64, len(dayparts))
		sum := 0.0
		for _, d := range dayparts {
			w := d.DurationHours*dynamicDurationWeight +
				float64(d.GenreCount)*dynamicGenreWeight +
				float64(d.BPMSubWindowCount)*dynamicBPMWindowWeight
			if d.HasSpecialty {
				w += dynamicSpecialtyWeight
			}
			weights[d.DaypartID] = w
			sum += w
		}
		return m.allocateByWeights(dayparts, weights, sum), nil

	case StrategyWeighted:
		if len(explicitWeights) == 0 {
			return nil, fmt.Errorf("budget: weighted strategy requires an explicit weights map")
		}
		sum := 0.0
		for _, d := range dayparts {
			sum += explicitWeights[d.DaypartID]
		}
		if sum <= 0 {
			return nil, fmt.Errorf("budget: weighted strategy weights sum to %.4f", sum)
		}
		return m.allocateByWeights(dayparts, explicitWeights, sum), nil

	default:
		return nil, fmt.Errorf("budget: unknown allocation strategy %q", strategy)
	}
}

func (m *Manager) allocateByWeights(dayparts []DaypartWeightInput, weights map[string]float64, sum float64) map[string]model.Money {
	total := m.total
	out := make(map[string]model.Money, len(dayparts))
	if sum <= 0 {
		shares := total.DivideEvenly(len(dayparts))
		for i, d := range dayparts {
			out[d.DaypartID] = shares[i]
		}
		return out
	}
	for _, d := range dayparts {
		fraction := weights[d.DaypartID] / sum
		out[d.DaypartID] = model.MoneyFromWeightedFraction(total, fraction)
	}
	return out
}
