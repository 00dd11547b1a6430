package homework

import (
	"fmt"
	"sort"
)

const (
	StatusApproved  = "approved"
	StatusReviewing = "reviewing"
	StatusRejected  = "rejected"
)

// Verdicts maps a homework status to the text sent to the chat.
// Build it with NewVerdicts; it is never modified afterwards.
type Verdicts struct {
	m map[string]string
}

// DefaultVerdicts returns the built-in verdict texts.
func DefaultVerdicts() map[string]string {
	return map[string]string{
		StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
		StatusReviewing: "Работа взята на проверку ревьюером.",
		StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
	}
}

// NewVerdicts starts from DefaultVerdicts and applies overrides.
// Overrides may only change the text of a known status.
func NewVerdicts(overrides map[string]string) (Verdicts, error) {
	m := DefaultVerdicts()
	for status, text := range overrides {
		if _, ok := m[status]; !ok {
			return Verdicts{}, fmt.Errorf("verdicts: unknown status %q (known: %v)", status, knownStatuses(m))
		}
		if text == "" {
			return Verdicts{}, fmt.Errorf("verdicts: empty text for status %q", status)
		}
		m[status] = text
	}
	return Verdicts{m: m}, nil
}

// Lookup returns the verdict text for status.
func (v Verdicts) Lookup(status string) (string, bool) {
	if v.m == nil {
		t, ok := DefaultVerdicts()[status]
		return t, ok
	}
	t, ok := v.m[status]
	return t, ok
}

// Statuses lists the known statuses in sorted order.
func (v Verdicts) Statuses() []string {
	if v.m == nil {
		return knownStatuses(DefaultVerdicts())
	}
	return knownStatuses(v.m)
}

func knownStatuses(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
