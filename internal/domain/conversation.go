package domain

import "time"

// Valores por defecto que asigna el backend al crear una conversación.
const (
	DefaultConversationTitle = "New Conversation"
	DefaultSystemPrompt      = "You are a helpful and friendly assistant."
)

// SenderType identifica quién envió un mensaje.
type SenderType string

const (
	SenderUser      SenderType = "user"
	SenderAssistant SenderType = "assistant"
)

// Message es un mensaje tal como lo ve el cliente: el ID viene del backend
// cuando se carga desde el servidor, o es un UUID generado localmente cuando
// el mensaje se agrega de forma optimista antes de confirmarse el envío.
type Message struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Sender    SenderType `json:"sender"`
	CreatedAt time.Time  `json:"created_at"`
}

// Conversation es la vista del cliente: identidad (persistida o temporal),
// título y la secuencia ordenada de mensajes. La lista es append-only desde
// el punto de vista del cliente.
type Conversation struct {
	ID        ConversationID `json:"conversation_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Messages  []Message      `json:"messages"`
}
