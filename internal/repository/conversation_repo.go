package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

type ConversationRepository interface {
	Create(ctx context.Context, userID int64, title, prompt string) (domain.ConversationRecord, error)
	GetByID(ctx context.Context, id int64, withMessages bool) (domain.ConversationRecord, error)
	ListByUserID(ctx context.Context, userID int64, withMessages bool) ([]domain.ConversationRecord, error)
}

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

func (r *PgConversationRepository) Create(ctx context.Context, userID int64, title, prompt string) (domain.ConversationRecord, error) {
	const query = `
		INSERT INTO conversations (user_id, title, prompt)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, title, prompt, created_at, updated_at
	`

	if prompt == "" {
		prompt = domain.DefaultSystemPrompt
	}

	var conv domain.ConversationRecord
	var promptValue *string
	err := r.pool.QueryRow(ctx, query, userID, title, prompt).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&promptValue,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	if promptValue != nil {
		conv.Prompt = *promptValue
	}
	return conv, nil
}

func (r *PgConversationRepository) GetByID(ctx context.Context, id int64, withMessages bool) (domain.ConversationRecord, error) {
	const query = `
		SELECT id, user_id, title, prompt, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv domain.ConversationRecord
	var promptValue *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&promptValue,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	if promptValue != nil {
		conv.Prompt = *promptValue
	}

	if withMessages {
		messages, err := r.listMessages(ctx, conv.ID)
		if err != nil {
			return domain.ConversationRecord{}, err
		}
		conv.Messages = messages
	}
	return conv, nil
}

func (r *PgConversationRepository) ListByUserID(ctx context.Context, userID int64, withMessages bool) ([]domain.ConversationRecord, error) {
	const query = `
		SELECT id, user_id, title, prompt, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []domain.ConversationRecord
	for rows.Next() {
		var conv domain.ConversationRecord
		var promptValue *string
		err = rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.Title,
			&promptValue,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if promptValue != nil {
			conv.Prompt = *promptValue
		}
		conversations = append(conversations, conv)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if withMessages {
		for i := range conversations {
			messages, err := r.listMessages(ctx, conversations[i].ID)
			if err != nil {
				return nil, err
			}
			conversations[i].Messages = messages
		}
	}
	return conversations, nil
}

func (r *PgConversationRepository) listMessages(ctx context.Context, conversationID int64) ([]domain.MessageRecord, error) {
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
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
