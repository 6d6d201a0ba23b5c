package canvas

// Notifier is anything whose change notifications can be switched off.
type Notifier interface {
	EventsEnabled() bool
	SetEventsEnabled(enabled bool)
}

// Suppress disables notifications on n and returns a function restoring the
// previous state. Nested calls restore correctly in LIFO order:
//
//	resume := canvas.Suppress(ws)
//	defer resume()
func Suppress(n Notifier) func() {
	prev := n.EventsEnabled()
	n.SetEventsEnabled(false)
	return func() {
		n.SetEventsEnabled(prev)
	}
}
