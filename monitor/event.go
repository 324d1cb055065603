package monitor

import (
	"strings"
)

// An Event is the set of readiness classes reported by one wake-up.
type Event uint8

// Readiness classes. EventError and EventHangup are always reported, whatever the interest.
const (
	EventDataReady Event = 1 << iota
	EventAlertReady
	EventError
	EventHangup
)

// Has reports whether every class in other is set.
func (e Event) Has(other Event) bool {
	return e&other == other && other != 0
}

func (e Event) String() string {
	if e == 0 {
		return "NONE"
	}
	var names []string
	for _, class := range []struct {
		ev   Event
		name string
	}{
		{EventAlertReady, "ALERT"},
		{EventDataReady, "DATA"},
		{EventError, "ERROR"},
		{EventHangup, "HANGUP"},
	} {
		if e.Has(class.ev) {
			names = append(names, class.name)
		}
	}
	return strings.Join(names, "|")
}
