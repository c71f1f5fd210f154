package playback

import "github.com/cockroachdb/errors"

// IntentType represents a user- or system-originated input to the engine.
type IntentType int

const (
	IntentAppeared IntentType = iota + 1
	IntentTappedNext
	IntentTappedPrevious
	IntentSwitchedGroup
	IntentSwitchedPage
	IntentSelectedGroup
	IntentDismissed
	IntentPausedTimer
	IntentResumedTimer
	IntentTappedLink
	IntentTappedButton
)

var intentNames = map[IntentType]string{
	IntentAppeared:       "appeared",
	IntentTappedNext:     "tapped_next",
	IntentTappedPrevious: "tapped_previous",
	IntentSwitchedGroup:  "switched_group",
	IntentSwitchedPage:   "switched_page",
	IntentSelectedGroup:  "selected_group",
	IntentDismissed:      "dismissed",
	IntentPausedTimer:    "paused_timer",
	IntentResumedTimer:   "resumed_timer",
	IntentTappedLink:     "tapped_link",
	IntentTappedButton:   "tapped_button",
}

// String returns the string representation of the intent type.
func (t IntentType) String() string {
	if name, ok := intentNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseIntentType converts a wire name such as "tapped_next" to an IntentType.
func ParseIntentType(name string) (IntentType, error) {
	for t, n := range intentNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Newf("unknown playback intent: %q", name)
}

// Direction is the swipe direction for IntentSwitchedGroup.
type Direction int

const (
	DirectionNext Direction = iota
	DirectionPrevious
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == DirectionPrevious {
		return "previous"
	}
	return "next"
}

// ParseDirection converts "next"/"previous" (or "prev") to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "next":
		return DirectionNext, nil
	case "previous", "prev":
		return DirectionPrevious, nil
	default:
		return 0, errors.Newf("invalid direction: %q", s)
	}
}

// Intent is one input to the engine.
type Intent struct {
	Type      IntentType
	Direction Direction // IntentSwitchedGroup
	PageIndex int       // IntentSwitchedPage
	GroupID   string    // IntentSelectedGroup
	URL       string    // IntentTappedLink
}

// Convenience constructors.

func Appeared() Intent       { return Intent{Type: IntentAppeared} }
func TappedNext() Intent     { return Intent{Type: IntentTappedNext} }
func TappedPrevious() Intent { return Intent{Type: IntentTappedPrevious} }
func Dismissed() Intent      { return Intent{Type: IntentDismissed} }
func PausedTimer() Intent    { return Intent{Type: IntentPausedTimer} }
func ResumedTimer() Intent   { return Intent{Type: IntentResumedTimer} }
func TappedButton() Intent   { return Intent{Type: IntentTappedButton} }

func SwitchedGroup(d Direction) Intent {
	return Intent{Type: IntentSwitchedGroup, Direction: d}
}

func SwitchedPage(index int) Intent {
	return Intent{Type: IntentSwitchedPage, PageIndex: index}
}

func SelectedGroup(groupID string) Intent {
	return Intent{Type: IntentSelectedGroup, GroupID: groupID}
}

func TappedLink(url string) Intent {
	return Intent{Type: IntentTappedLink, URL: url}
}
