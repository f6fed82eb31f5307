package scan

// State is a step of one ProcessImage run.
type State string

const (
	StateIdle                   State = "idle"
	StateValidating             State = "validating"
	StateExtracting             State = "extracting"
	StateAnalyzing              State = "analyzing"
	StateSuggestingAlternatives State = "suggesting_alternatives"
	StateDone                   State = "done"
	StateError                  State = "error"
)

// Observer is notified of every state transition of a run, in order, on the
// goroutine running ProcessImage.
type Observer interface {
	OnTransition(from, to State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State)

func (f ObserverFunc) OnTransition(from, to State) { f(from, to) }
