package ws

import "encoding/json"

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "send_message"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// outEnvelope is the server-to-client frame. Body is marshalled as-is and
// omitted entirely for signal-only events such as "stop_typing".
type outEnvelope struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// ──────────────────────────── Request DTOs ────────────────────────────────

// JoinRoomRequest is the body for "join_room".
type JoinRoomRequest struct {
	Room        string `json:"room"`
	DisplayName string `json:"displayName"`
}

// LeaveRoomRequest is the body for "leave_room".
type LeaveRoomRequest struct {
	Room string `json:"room"`
}

// GetMembersRequest is the body for "get_members".
type GetMembersRequest struct {
	Room string `json:"room"`
}

// SendMessageRequest is the body for "send_message".
type SendMessageRequest struct {
	Room    string `json:"room"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

// TypingRequest is the body for "typing" and "stop_typing".
type TypingRequest struct {
	Room   string `json:"room"`
	Author string `json:"author"`
}

// AiMessageRequest is the body for "send_ai_message".
type AiMessageRequest struct {
	Message string `json:"message"`
}

// ──────────────────────────── Response DTOs ───────────────────────────────

// ChatMessage is the body of "receive_message" and "receive_ai_message".
// Time is a wall-clock string stamped at broadcast time.
type ChatMessage struct {
	Author  string `json:"author"`
	Message string `json:"message"`
	Time    string `json:"time"`
}
