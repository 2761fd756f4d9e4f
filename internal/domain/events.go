package domain

// Event names published on the in-process event bus
const (
	// EventCycleFinished carries the CycleResult of a finished poll under "result"
	EventCycleFinished = "cycle.finished"
	// EventTriggerDropped carries the OLT id under "olt" when a trigger hits a running poll
	EventTriggerDropped = "trigger.dropped"
)
