package findings

import (
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/eeg-findings-server/internal/domain"
)

// State is the section the classifier is currently filling.
type State int

const (
	NoSection State = iota
	InBackground
	InAbnormal
	InArtifacts
	InConclusion
)

var stateNames = [...]string{"NoSection", "InBackground", "InAbnormal", "InArtifacts", "InConclusion"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(?)"
}

// Key returns the section a state fills, or "" for NoSection.
func (s State) Key() domain.SectionKey {
	switch s {
	case InBackground:
		return domain.SectionBackground
	case InAbnormal:
		return domain.SectionAbnormal
	case InArtifacts:
		return domain.SectionArtifacts
	case InConclusion:
		return domain.SectionConclusion
	default:
		return ""
	}
}

func stateFor(key domain.SectionKey) State {
	switch key {
	case domain.SectionBackground:
		return InBackground
	case domain.SectionAbnormal:
		return InAbnormal
	case domain.SectionArtifacts:
		return InArtifacts
	case domain.SectionConclusion:
		return InConclusion
	default:
		return NoSection
	}
}

// EventKind is what a finding means to the classifier.
type EventKind int

const (
	EventHeader EventKind = iota
	EventUnknownHeader
	EventSubDescription
	EventContent
)

func (k EventKind) String() string {
	switch k {
	case EventHeader:
		return "Header"
	case EventUnknownHeader:
		return "UnknownHeader"
	case EventSubDescription:
		return "SubDescription"
	case EventContent:
		return "Content"
	default:
		return "EventKind(?)"
	}
}

// Event is a finding reduced to its role in the report.
type Event struct {
	Kind    EventKind
	Key     domain.SectionKey // EventHeader only
	Text    string            // payload: trimmed description, without the dash for sub-descriptions
	Finding domain.Finding
}

// Action is the step taken for an event in a given state.
type Action int

const (
	ActionIgnore Action = iota
	ActionEnter
	ActionDiscard
	ActionAppendFragment
	ActionDescribe
	ActionSetContent
	ActionPromote
)

var actionNames = [...]string{"Ignore", "Enter", "Discard", "AppendFragment", "Describe", "SetContent", "Promote"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "Action(?)"
}

type stateClass int

const (
	classNone stateClass = iota
	classNarrative
	classItemList
	classConclusion
)

func classOf(s State) stateClass {
	switch s {
	case InBackground:
		return classNarrative
	case InAbnormal, InArtifacts:
		return classItemList
	case InConclusion:
		return classConclusion
	default:
		return classNone
	}
}

// transitions is read-only after init.
var transitions = map[stateClass]map[EventKind]Action{
	classNone: {
		EventHeader:         ActionEnter,
		EventUnknownHeader:  ActionIgnore,
		EventSubDescription: ActionDiscard,
		EventContent:        ActionDiscard,
	},
	classNarrative: {
		EventHeader:         ActionEnter,
		EventUnknownHeader:  ActionIgnore,
		EventSubDescription: ActionDescribe,
		EventContent:        ActionSetContent,
	},
	classItemList: {
		EventHeader:         ActionEnter,
		EventUnknownHeader:  ActionIgnore,
		EventSubDescription: ActionDescribe,
		EventContent:        ActionPromote,
	},
	classConclusion: {
		EventHeader:         ActionEnter,
		EventUnknownHeader:  ActionIgnore,
		EventSubDescription: ActionAppendFragment,
		EventContent:        ActionSetContent,
	},
}

// Transition returns the action taken for an event kind while in state s.
func Transition(s State, kind EventKind) Action {
	return transitions[classOf(s)][kind]
}

var titleOrdinal = regexp.MustCompile(`^\d+\.?\s*`)

// EventFor reduces a finding to a classifier event.
func EventFor(f domain.Finding) Event {
	desc := strings.TrimSpace(f.Description)
	switch {
	case strings.HasPrefix(desc, "**"):
		key := domain.SectionKey(strings.TrimSpace(strings.ReplaceAll(desc, "**", "")))
		if key.IsValid() {
			return Event{Kind: EventHeader, Key: key, Text: desc, Finding: f}
		}
		return Event{Kind: EventUnknownHeader, Text: desc, Finding: f}
	case strings.HasPrefix(desc, "-"):
		return Event{Kind: EventSubDescription, Text: strings.TrimSpace(desc[1:]), Finding: f}
	default:
		return Event{Kind: EventContent, Text: desc, Finding: f}
	}
}

// Step records how one finding was handled.
type Step struct {
	FindingID int
	State     State // state before the finding
	Event     EventKind
	Action    Action
	Dropped   bool // the action produced no output
}

// accumulator is the fold state of one classification.
type accumulator struct {
	state     State
	sections  [len(domain.SectionOrder)]domain.Section
	last      int // index of the last emitted item in the current section, -1 if none
	fragments []string
}

func newAccumulator() *accumulator {
	acc := &accumulator{last: -1}
	empty := domain.NewSections()
	for i, key := range domain.SectionOrder {
		acc.sections[i], _ = empty.Get(key)
	}
	return acc
}

func (acc *accumulator) current() *domain.Section {
	i := slices.Index(domain.SectionOrder[:], acc.state.Key())
	if i < 0 {
		return nil
	}
	return &acc.sections[i]
}

// apply executes the action and reports whether it produced output.
func (acc *accumulator) apply(action Action, ev Event) bool {
	switch action {
	case ActionEnter:
		acc.state = stateFor(ev.Key)
		acc.last = -1
		return true
	case ActionAppendFragment:
		acc.fragments = append(acc.fragments, ev.Text)
		return true
	case ActionDescribe:
		sec := acc.current()
		switch {
		case sec == nil:
			return false
		case acc.last >= 0:
			sec.Items[acc.last].Description = ev.Text
			return true
		case sec.Kind == domain.KindNarrative:
			sec.Description = ev.Text
			return true
		default:
			return false
		}
	case ActionSetContent:
		sec := acc.current()
		if sec == nil {
			return false
		}
		sec.Content = ev.Text
		return true
	case ActionPromote:
		sec := acc.current()
		if sec == nil || !promotable(ev) {
			return false
		}
		f := ev.Finding
		sec.Items = append(sec.Items, domain.ListItem{
			ID:          f.ID,
			Title:       strings.TrimSpace(titleOrdinal.ReplaceAllString(ev.Text, "")),
			Description: "",
			Location:    f.Location,
			Coordinates: domain.Box{
				X:      f.Coordinates.X,
				Y:      f.Coordinates.Y,
				Width:  domain.DefaultMarkerWidth,
				Height: domain.DefaultMarkerHeight,
			},
		})
		acc.last = len(sec.Items) - 1
		return true
	default:
		// ActionIgnore, ActionDiscard
		return false
	}
}

// promotable reports whether a content line in an itemized section becomes a list item.
// Lines without a location are narrative noise.
func promotable(ev Event) bool {
	return ev.Finding.HasLocation() &&
		!strings.HasPrefix(ev.Text, "-") &&
		!strings.HasPrefix(ev.Text, "**")
}

func (acc *accumulator) finish() domain.Sections {
	if len(acc.fragments) > 0 {
		i := slices.Index(domain.SectionOrder[:], domain.SectionConclusion)
		acc.sections[i].Description = strings.Join(acc.fragments, " ")
	}
	out := domain.NewSections()
	for i, key := range domain.SectionOrder {
		out.Set(key, acc.sections[i])
	}
	return out
}

func fold(seq iter.Seq[domain.Finding], trace func(Step)) domain.Sections {
	acc := newAccumulator()
	for f := range seq {
		ev := EventFor(f)
		before := acc.state
		action := Transition(before, ev.Kind)
		applied := acc.apply(action, ev)
		if trace != nil {
			trace(Step{
				FindingID: f.ID,
				State:     before,
				Event:     ev.Kind,
				Action:    action,
				Dropped:   !applied,
			})
		}
	}
	return acc.finish()
}

// Classify groups findings into the four report sections.
//
// Findings that precede the first recognized header are dropped, and a narrative section keeps
// only its last plain content line.
func Classify(seq iter.Seq[domain.Finding]) domain.Sections {
	return fold(seq, nil)
}

// ClassifyFindings is Classify over a slice.
func ClassifyFindings(fs []domain.Finding) domain.Sections {
	return Classify(slices.Values(fs))
}

// ClassifyTrace classifies and also returns one Step per finding.
func ClassifyTrace(seq iter.Seq[domain.Finding]) (domain.Sections, []Step) {
	var steps []Step
	sections := fold(seq, func(s Step) { steps = append(steps, s) })
	return sections, steps
}

// Parse extracts and classifies a raw model response.
func Parse(text string) domain.Sections {
	return Classify(Extract(text))
}
