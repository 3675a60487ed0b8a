package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/easeaico/familybot/internal/chat"
	"github.com/easeaico/familybot/internal/types"
)

// conversationModel maps to the conversations table.
type conversationModel struct {
	ID                int64  `gorm:"primaryKey"`
	UserID            int64  `gorm:"column:user_id;index:idx_user_character;not null"`
	CharacterID       int64  `gorm:"column:character_id;index:idx_user_character;not null"`
	UserMessage       string `gorm:"type:text;not null"`
	AssistantResponse string `gorm:"type:text;not null"`
	Intent            string
	Emotion           string
	ConversationType  string         `gorm:"column:conversation_type"`
	SessionID         string         `gorm:"column:session_id"`
	Context           datatypes.JSON `gorm:"column:context"`
	SatisfactionScore *int           `gorm:"column:satisfaction_score"`
	IsImportant       bool           `gorm:"column:is_important"`
	Notes             string
	CreatedAt         time.Time `gorm:"index"`
}

func (conversationModel) TableName() string {
	return "conversations"
}

// conversationRepo is the turn ledger.
type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo returns a ConversationRepo backed by GORM.
func NewConversationRepo(db *gorm.DB) chat.ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, conversation *types.Conversation) error {
	if conversation == nil {
		return fmt.Errorf("conversation cannot be nil")
	}
	model := conversationModel{
		UserID:            conversation.UserID,
		CharacterID:       conversation.CharacterID,
		UserMessage:       conversation.UserMessage,
		AssistantResponse: conversation.AssistantResponse,
		Intent:            conversation.Intent,
		Emotion:           conversation.Emotion,
		ConversationType:  conversation.Type,
		SessionID:         conversation.SessionID,
		SatisfactionScore: conversation.SatisfactionScore,
		IsImportant:       conversation.IsImportant,
		Notes:             conversation.Notes,
	}
	if conversation.Context != nil {
		raw, err := json.Marshal(conversation.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal context: %w", err)
		}
		model.Context = datatypes.JSON(raw)
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	conversation.ID = model.ID
	conversation.CreatedAt = model.CreatedAt
	return nil
}

func (r *conversationRepo) ListByPair(ctx context.Context, userID, characterID int64, offset, limit int) ([]types.Conversation, error) {
	var models []conversationModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	results := make([]types.Conversation, 0, len(models))
	for _, model := range models {
		results = append(results, conversationFromModel(model))
	}
	return results, nil
}

func (r *conversationRepo) CountByPair(ctx context.Context, userID, characterID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (r *conversationRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (r *conversationRepo) CountByCharacter(ctx context.Context, characterID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("character_id = ?", characterID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (r *conversationRepo) AverageSatisfactionByUser(ctx context.Context, userID int64) (float64, error) {
	return r.averageSatisfaction(ctx, "user_id", userID)
}

func (r *conversationRepo) AverageSatisfactionByCharacter(ctx context.Context, characterID int64) (float64, error) {
	return r.averageSatisfaction(ctx, "character_id", characterID)
}

func (r *conversationRepo) averageSatisfaction(ctx context.Context, column string, id int64) (float64, error) {
	var average *float64
	if err := r.db.WithContext(ctx).
		Model(&conversationModel{}).
		Select("AVG(satisfaction_score)").
		Where(column+" = ?", id).
		Where("satisfaction_score IS NOT NULL").
		Scan(&average).Error; err != nil {
		return 0, fmt.Errorf("failed to average satisfaction: %w", err)
	}
	if average == nil {
		return 0, nil
	}
	return *average, nil
}

func (r *conversationRepo) CountSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent conversations: %w", err)
	}
	return count, nil
}

func conversationFromModel(model conversationModel) types.Conversation {
	conversation := types.Conversation{
		ID:                model.ID,
		UserID:            model.UserID,
		CharacterID:       model.CharacterID,
		UserMessage:       model.UserMessage,
		AssistantResponse: model.AssistantResponse,
		Intent:            model.Intent,
		Emotion:           model.Emotion,
		Type:              model.ConversationType,
		SessionID:         model.SessionID,
		SatisfactionScore: model.SatisfactionScore,
		IsImportant:       model.IsImportant,
		Notes:             model.Notes,
		CreatedAt:         model.CreatedAt,
	}
	if len(model.Context) > 0 {
		var contextBlob map[string]any
		if err := json.Unmarshal(model.Context, &contextBlob); err == nil {
			conversation.Context = contextBlob
		}
	}
	return conversation
}
