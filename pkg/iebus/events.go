package iebus

import (
	"fmt"

	"github.com/golang/glog"
)

// Severity of an Event.
type Severity int

// Severities.
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Event is a diagnostic produced by the controller.
type Event struct {
	Severity Severity
	Tag      string
	Text     string
}

// EventSink receives events.
type EventSink interface {
	LogEvent(Event)
}

// LogEventFunc is func form of EventSink.
type LogEventFunc func(Event)

// LogEvent implements EventSink.
func (f LogEventFunc) LogEvent(ev Event) {
	f(ev)
}

// GlogSink routes events to glog. Info events need -v=2, debug -v=4.
type GlogSink struct{}

// LogEvent implements EventSink.
func (GlogSink) LogEvent(ev Event) {
	switch ev.Severity {
	case SeverityError:
		glog.Errorf("[%s] %s", ev.Tag, ev.Text)
	case SeverityWarning:
		glog.Warningf("[%s] %s", ev.Tag, ev.Text)
	case SeverityInfo:
		glog.V(2).Infof("[%s] %s", ev.Tag, ev.Text)
	default:
		glog.V(4).Infof("[%s] %s", ev.Tag, ev.Text)
	}
}
