package transcript

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
)

// Auto is the speaker selection that defers to the continuity heuristic.
const Auto = "auto"

// ContinuityProbability is the chance an automatic pick keeps the prior speaker.
const ContinuityProbability = 0.7

var (
	// ErrUnknownSpeaker indicates a selection that is neither auto nor registered.
	ErrUnknownSpeaker = errors.New("unknown speaker")
	// ErrEmptySpeakerName rejects blank custom speaker names.
	ErrEmptySpeakerName = errors.New("speaker name must not be empty")
)

// Speaker is one roster entry shown in the dialog view.
type Speaker struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Initials returns up to two upper-cased leading letters of the name words.
func (s Speaker) Initials() string {
	var out []rune
	for _, word := range strings.Fields(s.Name) {
		out = append(out, unicode.ToUpper([]rune(word)[0]))
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

// Roster is the fixed set of automatic speakers.
var Roster = []Speaker{
	{ID: "speaker-1", Name: "Speaker 1", Color: "speaker-1"},
	{ID: "speaker-2", Name: "Speaker 2", Color: "speaker-2"},
	{ID: "speaker-3", Name: "Speaker 3", Color: "speaker-3"},
}

// Registry holds the built-in roster plus user-added speakers.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	speakers map[string]Speaker
	newID    func() string
}

// NewRegistry returns a registry seeded with the automatic roster.
func NewRegistry() *Registry {
	r := &Registry{
		speakers: make(map[string]Speaker, len(Roster)),
		newID:    func() string { return "speaker-" + uuid.NewString() },
	}
	for _, s := range Roster {
		r.order = append(r.order, s.ID)
		r.speakers[s.ID] = s
	}
	return r
}

// Add registers a custom speaker and returns it.
func (r *Registry) Add(name string) (Speaker, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Speaker{}, ErrEmptySpeakerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := Speaker{ID: r.newID(), Name: name, Color: "speaker-1"}
	r.order = append(r.order, s.ID)
	r.speakers[s.ID] = s
	return s, nil
}

// Lookup resolves a speaker id.
func (r *Registry) Lookup(id string) (Speaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.speakers[id]
	return s, ok
}

// Name resolves a display name, or "Unknown" for unregistered ids.
func (r *Registry) Name(id string) string {
	if s, ok := r.Lookup(id); ok {
		return s.Name
	}
	return "Unknown"
}

// All returns speakers in registration order.
func (r *Registry) All() []Speaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Speaker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.speakers[id])
	}
	return out
}

// Resolve validates a selection, accepting Auto, an id, or a display name.
func (r *Registry) Resolve(choice string) (string, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" || strings.EqualFold(choice, Auto) {
		return Auto, nil
	}
	if _, ok := r.Lookup(choice); ok {
		return choice, nil
	}
	for _, s := range r.All() {
		if strings.EqualFold(s.Name, choice) {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSpeaker, choice)
}

// Next cycles auto -> registered speakers -> auto.
func (r *Registry) Next(current string) string {
	all := r.All()
	if current == Auto {
		return all[0].ID
	}
	for i, s := range all {
		if s.ID == current {
			if i+1 < len(all) {
				return all[i+1].ID
			}
			return Auto
		}
	}
	return Auto
}

// Assigner picks the speaker for a new entry.
type Assigner struct {
	// Float returns a uniform value in [0,1).
	Float func() float64
	// IntN returns a uniform value in [0,n).
	IntN func(n int) int
}

// NewAssigner uses rng when non-nil, otherwise the global source.
func NewAssigner(rng *rand.Rand) Assigner {
	if rng == nil {
		return Assigner{Float: rand.Float64, IntN: rand.IntN}
	}
	return Assigner{Float: rng.Float64, IntN: rng.IntN}
}

// Assign returns an explicit choice verbatim. For Auto it keeps the prior
// speaker with ContinuityProbability, otherwise picks uniformly from Roster.
func (a Assigner) Assign(choice string, prior *Entry) string {
	if choice != "" && choice != Auto {
		return choice
	}
	if prior != nil && a.Float() < ContinuityProbability {
		return prior.Speaker
	}
	return Roster[a.IntN(len(Roster))].ID
}
