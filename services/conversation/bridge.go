package conversation

import (
	"context"
	"strings"
	"time"

	"gigbook/apperror"
	conversationRepo "gigbook/database/repository/conversation"
	"gigbook/models"

	"go.uber.org/zap"
)

// Bridge hands out the conversation thread for a pair of users.
type Bridge interface {
	GetOrCreateConversation(ctx context.Context, userA, userB, serviceID, serviceTitle string) (*models.ConversationHandle, error)
}

type DefaultBridge struct {
	repo   conversationRepo.ConversationRepository
	logger *zap.Logger
}

func NewBridge(repo conversationRepo.ConversationRepository, logger *zap.Logger) *DefaultBridge {
	return &DefaultBridge{repo: repo, logger: logger}
}

func (b *DefaultBridge) GetOrCreateConversation(ctx context.Context, userA, userB, serviceID, serviceTitle string) (*models.ConversationHandle, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, apperror.Validation("both participants are required")
	}
	if userA == userB {
		return nil, apperror.Validation("cannot start a conversation with yourself")
	}

	conv, created, err := b.repo.FindOrInsert(ctx, &models.Conversation{
		PairKey:        conversationRepo.PairKey(userA, userB),
		Participant1ID: userA,
		Participant2ID: userB,
		ServiceID:      serviceID,
		ServiceTitle:   serviceTitle,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		b.logger.Info("conversation created",
			zap.String("conversationId", conv.ID),
			zap.String("serviceId", serviceID))
	}
	return &models.ConversationHandle{ID: conv.ID, New: created}, nil
}
