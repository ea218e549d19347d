package pipeline

import "time"

// Event statuses.
const (
	StatusStarted = "started"
	StatusDone    = "done"
	StatusCached  = "cached"
	StatusFailed  = "failed"
)

// Event reports the progress of one stage.
type Event struct {
	Stage   string        `json:"stage"`
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Observer receives stage events. It is called synchronously from the
// goroutine running the pipeline.
type Observer func(Event)

func (o *Options) emit(e Event) {
	if o.Observer != nil {
		o.Observer(e)
	}
}
