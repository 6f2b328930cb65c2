package types

import (
	"fmt"
	"strconv"
	"time"
)

type EventKind int

const (
	EventSessionStart EventKind = iota + 1
	EventSessionEnd
	EventEntry
	EventExit
	EventHeadFixStart
	EventHeadFixEnd
	EventReward
	EventStimulus
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStart:
		return "session-start"
	case EventSessionEnd:
		return "session-end"
	case EventEntry:
		return "entry"
	case EventExit:
		return "exit"
	case EventHeadFixStart:
		return "headfix-start"
	case EventHeadFixEnd:
		return "headfix-end"
	case EventReward:
		return "reward-given"
	case EventStimulus:
		return "stimulus-given"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// TrialEvent is one immutable record of the session event log.
//
// Index is the pulse index for reward and stimulus events. Side names the
// output line of a cyclic light stimulus; it is empty for numbered stimuli.
type TrialEvent struct {
	Tag   string
	At    time.Time
	Kind  EventKind
	Index int
	Side  string
}

// Label renders the event label used in the tab-separated event log.
func (e TrialEvent) Label() string {
	switch e.Kind {
	case EventSessionStart:
		return "SeshStart"
	case EventSessionEnd:
		return "SeshEnd"
	case EventEntry:
		return "entry"
	case EventExit:
		return "exit"
	case EventHeadFixStart:
		return "check+"
	case EventHeadFixEnd:
		return "complete"
	case EventReward:
		return fmt.Sprintf("reward%d", e.Index)
	case EventStimulus:
		if e.Side != "" {
			return "light-" + e.Side
		}
		return fmt.Sprintf("stimulus-%d", e.Index)
	default:
		return e.Kind.String()
	}
}

// SessionEvent builds a session-level event (start or end).
func SessionEvent(kind EventKind, at time.Time) TrialEvent {
	return TrialEvent{Tag: SessionTag, At: at, Kind: kind}
}

// AnimalEvent builds an event attributed to the animal with the given tag.
func AnimalEvent(tag TagID, kind EventKind, at time.Time) TrialEvent {
	return TrialEvent{Tag: tag.String(), At: at, Kind: kind}
}

// EpochSeconds renders t as Unix seconds with microsecond precision, the
// form used for event times and video artifact names.
func EpochSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + "." + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}
