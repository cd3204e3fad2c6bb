package models

// Turn roles. Gemini itself only knows "user" and "model"; "system" turns are
// sent to it as user turns.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// Turn represents a single message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

type HistoryResponse struct {
	SessionID string `json:"sessionId"`
	History   []Turn `json:"history"`
}

type ClearResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
