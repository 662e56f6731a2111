package models

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Answer is the result of one retrieval-QA turn.
type Answer struct {
	Question string `json:"question"`
	Content  string `json:"content"`
	Sources  []Hit  `json:"sources"`
}
