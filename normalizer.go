package main

import (
	"time"
)

// microsecond UTC timestamps, e.g. 2017-11-08T02:46:48.016000Z
const timestampLayout = "2006-01-02T15:04:05.000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// normalizeEvent tags one log event with its origin, adds a timestamp when the event
// has none, and returns it wrapped under "event" as a single newline terminated line.
func normalizeEvent(event *Object, owner, group, stream string, now time.Time) ([]byte, error) {
	event.Set("owner", owner)
	event.Set("log_group", group)
	event.Set("log_stream", stream)
	addTimestamp(event, now)
	return wrapEvent(event)
}

func addTimestamp(event *Object, now time.Time) {
	if event.Has("timestamp") {
		return
	}
	event.Prepend("timestamp", formatTimestamp(now))
}

// wrapEvent serializes {"event": v} followed by a newline. It is the only place a
// delimiter is written between events.
func wrapEvent(v any) ([]byte, error) {
	wrapper := NewObject()
	wrapper.Set("event", v)

	b, err := marshalCompact(wrapper)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
