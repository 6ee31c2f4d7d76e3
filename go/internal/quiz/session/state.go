package session

// Question identifies which tally an answer counts towards.
type Question int

const (
	QuestionUnknown Question = iota
	QuestionLanguage
	QuestionFormality
	QuestionExercises
)

// Question ids as they appear on the wire
const (
	LanguageID  = "language"
	FormalityID = "formality"
	ExercisesID = "exercises"
)

// ParseQuestion maps a wire question id to a Question. Unrecognized ids map to QuestionUnknown.
func ParseQuestion(id string) Question {
	switch id {
	case LanguageID:
		return QuestionLanguage
	case FormalityID:
		return QuestionFormality
	case ExercisesID:
		return QuestionExercises
	default:
		return QuestionUnknown
	}
}

func (q Question) String() string {
	switch q {
	case QuestionLanguage:
		return LanguageID
	case QuestionFormality:
		return FormalityID
	case QuestionExercises:
		return ExercisesID
	default:
		return "unknown"
	}
}

// Tally maps an answer label to the number of times it was selected.
// Counts only ever grow.
type Tally map[string]uint32

// Increment adds one selection for label, creating the entry at zero first.
func (t Tally) Increment(label string) {
	t[label]++
}

// Clone returns an independent copy. A nil tally clones to an empty, non-nil map.
func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for label, count := range t {
		out[label] = count
	}
	return out
}

// State is the mutable state of the live quiz session.
type State struct {
	CurrentSlide    uint32
	ResultsRevealed bool
	Language        Tally
	Formality       Tally
	Exercises       Tally
}

// NewState returns the initial session state: slide 0, results hidden, empty tallies.
func NewState() *State {
	return &State{
		Language:  make(Tally),
		Formality: make(Tally),
		Exercises: make(Tally),
	}
}

// tally returns the tally backing q, or nil for QuestionUnknown.
func (s *State) tally(q Question) Tally {
	switch q {
	case QuestionLanguage:
		return s.Language
	case QuestionFormality:
		return s.Formality
	case QuestionExercises:
		return s.Exercises
	default:
		return nil
	}
}

// Count increments every label in the tally for q and reports whether q was recognized.
func (s *State) Count(q Question, labels ...string) bool {
	t := s.tally(q)
	if t == nil {
		return false
	}
	for _, label := range labels {
		t.Increment(label)
	}
	return true
}

// Snapshot is an immutable point-in-time copy of State.
type Snapshot struct {
	CurrentSlide    uint32
	ResultsRevealed bool
	Language        Tally
	Formality       Tally
	Exercises       Tally
}

func (s *State) snapshot() Snapshot {
	return Snapshot{
		CurrentSlide:    s.CurrentSlide,
		ResultsRevealed: s.ResultsRevealed,
		Language:        s.Language.Clone(),
		Formality:       s.Formality.Clone(),
		Exercises:       s.Exercises.Clone(),
	}
}
