package models

import "encoding/json"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected for the job.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ParseJobStatus maps a wire status onto the known vocabulary. Anything
// unknown is reported as processing.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return JobStatus(s)
	}
	return JobProcessing
}

type Job struct {
	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"` // 0-100
	Message  string    `json:"message"`
}

type AnalyzeRequest struct {
	URL string `json:"url"`
}

// AnalyzeResponse accepts both "jobId" and "job_id" since the two backends
// in front of the pipeline disagree on the spelling.
type AnalyzeResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

func (r *AnalyzeResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		JobID      string `json:"jobId"`
		JobIDSnake string `json:"job_id"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.JobID = firstNonEmpty(raw.JobID, raw.JobIDSnake)
	r.Message = raw.Message
	return nil
}

type JobStatusResponse struct {
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message"`
	VideoID  string    `json:"video_id,omitempty"`
}

func (r *JobStatusResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		JobID      string  `json:"jobId"`
		JobIDSnake string  `json:"job_id"`
		Status     string  `json:"status"`
		Progress   float64 `json:"progress"`
		Message    string  `json:"message"`
		VideoID    string  `json:"video_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.JobID = firstNonEmpty(raw.JobID, raw.JobIDSnake)
	r.Status = ParseJobStatus(raw.Status)
	r.Progress = raw.Progress
	r.Message = raw.Message
	r.VideoID = raw.VideoID
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSTypeState         = "state"
	WSTypeToast         = "toast"
	WSTypeChat          = "chat"
	WSTypePlayerCommand = "player_command"
	WSTypePlayerTime    = "player_time"
	WSTypePlayerReady   = "player_ready"
)

// Toast is a transient user-facing notification.
type Toast struct {
	Message    string `json:"message"`
	DurationMS int64  `json:"duration_ms"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	ReturnTo  string            `json:"return_to,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
