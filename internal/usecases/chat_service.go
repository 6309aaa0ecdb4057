package usecases

import (
	"context"

	"github.com/elmyly/whaty/internal/entities"
)

// ChatService serves chat and message retrieval through the session's live
// connection.
type ChatService struct {
	sessions SessionSource
}

func NewChatService(sessions SessionSource) *ChatService {
	return &ChatService{sessions: sessions}
}

func (s *ChatService) ListChats(ctx context.Context, key string) ([]entities.Chat, error) {
	conn, err := s.sessions.RequireConnected(key)
	if err != nil {
		return nil, err
	}
	chats, err := conn.ListChats(ctx)
	if err != nil {
		return nil, &entities.ProviderError{Op: "list chats", Err: err}
	}
	return chats, nil
}

func (s *ChatService) FetchMessages(ctx context.Context, key, chatID string, limit int) ([]entities.ChatMessage, error) {
	conn, err := s.sessions.RequireConnected(key)
	if err != nil {
		return nil, err
	}
	msgs, err := conn.FetchMessages(ctx, chatID, limit)
	if err != nil {
		return nil, &entities.ProviderError{Op: "fetch messages", Err: err}
	}
	return msgs, nil
}
