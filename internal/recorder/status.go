package recorder

// Status is the pipeline state reported to observers.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRecording  Status = "recording"
	StatusPaused     Status = "paused"
	StatusEncoding   Status = "encoding"
	StatusConverting Status = "converting"
	StatusError      Status = "error"
)

// Observer receives pipeline events. Methods are called from the pipeline's
// goroutines and must not block for long; they must not call Stop.
type Observer interface {
	// OnTime is called once per written frame with the elapsed time as HH:MM:SS.
	OnTime(elapsed string)
	OnStatus(status Status)
	// OnFinished reports the path of the final output file.
	OnFinished(path string)
	OnError(err error)
}

// ObserverFuncs adapts optional callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Time     func(string)
	Status   func(Status)
	Finished func(string)
	Error    func(error)
}

func (o ObserverFuncs) OnTime(elapsed string) {
	if o.Time != nil {
		o.Time(elapsed)
	}
}

func (o ObserverFuncs) OnStatus(status Status) {
	if o.Status != nil {
		o.Status(status)
	}
}

func (o ObserverFuncs) OnFinished(path string) {
	if o.Finished != nil {
		o.Finished(path)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// Observers fans events out to each member in order.
type Observers []Observer

func (obs Observers) OnTime(elapsed string) {
	for _, o := range obs {
		o.OnTime(elapsed)
	}
}

func (obs Observers) OnStatus(status Status) {
	for _, o := range obs {
		o.OnStatus(status)
	}
}

func (obs Observers) OnFinished(path string) {
	for _, o := range obs {
		o.OnFinished(path)
	}
}

func (obs Observers) OnError(err error) {
	for _, o := range obs {
		o.OnError(err)
	}
}
