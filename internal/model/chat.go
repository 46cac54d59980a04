package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatSession struct {
	ID          string `json:"id" db:"id"`
	AssistantID string `json:"assistant_id" db:"assistant_id"`
	Title       string `json:"title" db:"title"`
	Ctime       int64  `json:"ctime" db:"ctime"`
}

// ChatMessage records one turn of a session. The log is append only and
// replayed in creation order.
type ChatMessage struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	Role      string `json:"role" db:"role"`
	Content   string `json:"content" db:"content"`
	Ctime     int64  `json:"ctime" db:"ctime"`
}
