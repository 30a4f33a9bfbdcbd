package domain

import "time"

// ConversationRecord es la fila autoritativa del backend. A diferencia de la
// vista del cliente, aquí los IDs siempre son numéricos.
type ConversationRecord struct {
	ID        int64           `json:"conversation_id"`
	UserID    int64           `json:"-"`
	Title     string          `json:"title"`
	Prompt    string          `json:"prompt,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"-"`
	Messages  []MessageRecord `json:"messages"`
}

// MessageRecord es un mensaje persistido, ordenado por created_at dentro de
// su conversación.
type MessageRecord struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"-"`
	Sender         SenderType `json:"sender"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
