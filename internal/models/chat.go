package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a cooking conversation.
type ChatMessage struct {
	ID         string `json:"id"`
	Role       string `json:"role"` // "user" or "assistant"
	Content    string `json:"content"`
	StepNumber int    `json:"step_number,omitempty"`
	ImageURL   string `json:"image_url,omitempty"` // data URL preview of an attached photo
}

type ChatStartRequest struct {
	Recipe Recipe `json:"recipe"`
}

type ChatStartResponse struct {
	SessionID string `json:"session_id"`
}

// ChatMessageRequest is the payload sent to the assistant. ImageBase64 is
// sent as null when no photo is attached.
type ChatMessageRequest struct {
	SessionID   string  `json:"session_id"`
	StepNumber  int     `json:"step_number"`
	Message     string  `json:"message"`
	ImageBase64 *string `json:"image_base64"`
}

type ChatSessionStatus struct {
	CompletedSteps []int `json:"completed_steps"`
}

type ChatMessageResponse struct {
	Reply         string             `json:"reply"`
	SessionStatus *ChatSessionStatus `json:"session_status,omitempty"`
}

type CompleteStepResponse struct {
	IsFinished bool `json:"is_finished"`
	NextStep   int  `json:"next_step,omitempty"`
}
