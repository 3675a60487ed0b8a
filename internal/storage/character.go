package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/familybot/internal/chat"
	"github.com/easeaico/familybot/internal/types"
)

// characterModel maps to the characters table.
type characterModel struct {
	ID            int64          `gorm:"primaryKey"`
	CharacterKey  string         `gorm:"column:character_key;uniqueIndex;not null"`
	Name          string         `gorm:"not null"`
	FamilyRole    string         `gorm:"column:family_role"`
	Personality   string         `gorm:"type:text"`
	VoiceConfig   datatypes.JSON `gorm:"column:voice_config"`
	Greeting      string         `gorm:"type:text"`
	SystemPrompt  string         `gorm:"type:text"`
	AvatarURL     string         `gorm:"column:avatar_url"`
	BackgroundURL string         `gorm:"column:background_url"`
	Status        string
	IsDefault     bool `gorm:"column:is_default"`
	SortOrder     int  `gorm:"column:sort_order"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// characterRepo accesses character data.
type characterRepo struct {
	db *gorm.DB
}

// NewCharacterRepo returns a CharacterRepo backed by GORM.
func NewCharacterRepo(db *gorm.DB) chat.CharacterRepo {
	return &characterRepo{db: db}
}

func (r *characterRepo) GetByKey(ctx context.Context, characterKey string) (*types.Character, error) {
	var model characterModel
	err := r.db.WithContext(ctx).Where("character_key = ?", characterKey).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character by key: %w", err)
	}
	result := characterFromModel(model)
	return &result, nil
}

func (r *characterRepo) ListActive(ctx context.Context) ([]types.Character, error) {
	var models []characterModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", types.CharacterStatusActive).
		Order("sort_order ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list active characters: %w", err)
	}

	results := make([]types.Character, 0, len(models))
	for _, model := range models {
		results = append(results, characterFromModel(model))
	}
	return results, nil
}

// Create inserts a character. A concurrent insert of the same key wins
// silently, which keeps the built-in fallback idempotent.
func (r *characterRepo) Create(ctx context.Context, character *types.Character) error {
	if character == nil {
		return fmt.Errorf("character cannot be nil")
	}
	model, err := characterToModel(character)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "character_key"}},
			DoNothing: true,
		}).
		Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	character.ID = model.ID
	character.CreatedAt = model.CreatedAt
	character.UpdatedAt = model.UpdatedAt
	return nil
}

func characterToModel(character *types.Character) (characterModel, error) {
	model := characterModel{
		CharacterKey:  character.CharacterKey,
		Name:          character.Name,
		FamilyRole:    character.FamilyRole,
		Personality:   character.Personality,
		Greeting:      character.Greeting,
		SystemPrompt:  character.SystemPrompt,
		AvatarURL:     character.AvatarURL,
		BackgroundURL: character.BackgroundURL,
		Status:        character.Status,
		IsDefault:     character.IsDefault,
		SortOrder:     character.SortOrder,
	}
	if character.VoiceConfig != nil {
		raw, err := json.Marshal(character.VoiceConfig)
		if err != nil {
			return characterModel{}, fmt.Errorf("failed to marshal voice config: %w", err)
		}
		model.VoiceConfig = datatypes.JSON(raw)
	}
	return model, nil
}

func characterFromModel(model characterModel) types.Character {
	character := types.Character{
		ID:            model.ID,
		CharacterKey:  model.CharacterKey,
		Name:          model.Name,
		FamilyRole:    model.FamilyRole,
		Personality:   model.Personality,
		Greeting:      model.Greeting,
		SystemPrompt:  model.SystemPrompt,
		AvatarURL:     model.AvatarURL,
		BackgroundURL: model.BackgroundURL,
		Status:        model.Status,
		IsDefault:     model.IsDefault,
		SortOrder:     model.SortOrder,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if len(model.VoiceConfig) > 0 {
		// A corrupt blob degrades to no voice config rather than failing
		// the lookup.
		var voiceConfig map[string]any
		if err := json.Unmarshal(model.VoiceConfig, &voiceConfig); err == nil {
			character.VoiceConfig = voiceConfig
		}
	}
	return character
}
