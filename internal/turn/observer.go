package turn

// Observer receives turn lifecycle events. IntentCollected and IntentDropped are called from
// collection goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	TurnStarted(turnID string, number int64)
	PhaseChanged(turnID string, phase Phase)
	IntentCollected(turnID string, intent Intent)
	IntentDropped(turnID, actor string, err error)
	Resolved(turnID string, res Resolution)
	TurnCompleted(res Result)
	TurnFailed(turnID string, err *Error)
}

// NopObserver ignores every event. Embed it to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) TurnStarted(string, int64)           {}
func (NopObserver) PhaseChanged(string, Phase)          {}
func (NopObserver) IntentCollected(string, Intent)      {}
func (NopObserver) IntentDropped(string, string, error) {}
func (NopObserver) Resolved(string, Resolution)         {}
func (NopObserver) TurnCompleted(Result)                {}
func (NopObserver) TurnFailed(string, *Error)           {}

// Observers fans every event out in order.
type Observers []Observer

func (os Observers) TurnStarted(id string, n int64) {
	for _, o := range os {
		o.TurnStarted(id, n)
	}
}

func (os Observers) PhaseChanged(id string, p Phase) {
	for _, o := range os {
		o.PhaseChanged(id, p)
	}
}

func (os Observers) IntentCollected(id string, in Intent) {
	for _, o := range os {
		o.IntentCollected(id, in)
	}
}

func (os Observers) IntentDropped(id, actor string, err error) {
	for _, o := range os {
		o.IntentDropped(id, actor, err)
	}
}

func (os Observers) Resolved(id string, res Resolution) {
	for _, o := range os {
		o.Resolved(id, res)
	}
}

func (os Observers) TurnCompleted(res Result) {
	for _, o := range os {
		o.TurnCompleted(res)
	}
}

func (os Observers) TurnFailed(id string, err *Error) {
	for _, o := range os {
		o.TurnFailed(id, err)
	}
}
