package config

type WorkerKeyStruct struct {
	JourneyEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	JourneyEventsQueue: "journey_events_queue",
}
