// Package runpod provides an HTTP client for RunPod serverless endpoints.
package runpod

// Status represents the status of a RunPod job.
type Status string

// RunPod job statuses aligned with the RunPod API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusRunning    Status = "RUNNING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// VideoInput is the input payload of a text- or image-to-video worker.
type VideoInput struct {
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
	ImageBase64     string `json:"image_base64,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Seed            string `json:"seed,omitempty"`
}

// runRequest represents the request body for RunPod's /run endpoint.
type runRequest struct {
	Input any `json:"input"`
}

// runResponse represents the response from RunPod's /run endpoint.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from RunPod's /status endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput represents the output field in a status response.
type statusOutput struct {
	Video    string `json:"video,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status      Status
	VideoBase64 string // Base64-encoded video data, set on completion by inline workers
	VideoURL    string // Location of the video, set on completion by uploading workers
	Error       string // Error message (only set when Status is StatusFailed)
}
