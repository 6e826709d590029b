package model

// Message is one turn of a conversation thread kept next to a project graph.
type Message struct {
	UUID      string `json:"uuid,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}
