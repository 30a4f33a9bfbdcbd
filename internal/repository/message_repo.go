package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, conversationID int64, sender domain.SenderType, content string) (domain.MessageRecord, error)
	ListByConversationID(ctx context.Context, conversationID int64) ([]domain.MessageRecord, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, conversationID int64, sender domain.SenderType, content string) (domain.MessageRecord, error) {
	const query = `
		INSERT INTO messages (conversation_id, sent_by, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, sent_by, content, created_at
	`

	var msg domain.MessageRecord
	err := r.pool.QueryRow(ctx, query, conversationID, string(sender), content).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Sender,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return domain.MessageRecord{}, err
	}
	return msg, nil
}

func (r *PgMessageRepository) ListByConversationID(ctx context.Context, conversationID int64) ([]domain.MessageRecord, error) {
	const query = `
		SELECT id, conversation_id, sent_by, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.MessageRecord
	for rows.Next() {
		var msg domain.MessageRecord
		err = rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Sender,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
