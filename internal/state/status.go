package state

// Status is the single generation status of a session.
type Status int

const (
	Idle Status = iota
	LoadingModels
	Generating
	Streaming
	GeneratingImage
	GeneratingAudio
	Saving
	LoadingHistory
	Success
	Error
)

var statusNames = [...]string{
	Idle:            "idle",
	LoadingModels:   "loading_models",
	Generating:      "generating",
	Streaming:       "streaming",
	GeneratingImage: "generating_image",
	GeneratingAudio: "generating_audio",
	Saving:          "saving",
	LoadingHistory:  "loading_history",
	Success:         "success",
	Error:           "error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}
