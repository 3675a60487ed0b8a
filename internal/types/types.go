// Package types holds the persisted domain records shared across packages.
package types

import "time"

// User lifecycle states.
const (
	UserStatusActive    = "ACTIVE"
	UserStatusInactive  = "INACTIVE"
	UserStatusSuspended = "SUSPENDED"
)

// Character lifecycle states.
const (
	CharacterStatusActive   = "ACTIVE"
	CharacterStatusInactive = "INACTIVE"
)

// Conversation turn kinds.
const (
	ConversationTypeText  = "TEXT"
	ConversationTypeVoice = "VOICE"
)

// AudioInputMarker is stored as the user input of a voice turn instead of
// the raw audio bytes.
const AudioInputMarker = "[语音消息]"

// User is the identity anchor, created lazily on first contact.
type User struct {
	ID               int64     `json:"id"`
	UserKey          string    `json:"userId"`
	Username         string    `json:"username"`
	DefaultCharacter string    `json:"defaultCharacter"`
	Status           string    `json:"status"`
	LastActiveAt     time.Time `json:"lastActiveTime"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Character is a selectable companion persona.
type Character struct {
	ID            int64          `json:"id"`
	CharacterKey  string         `json:"characterId"`
	Name          string         `json:"name"`
	FamilyRole    string         `json:"familyRole"`
	Personality   string         `json:"personality"`
	VoiceConfig   map[string]any `json:"voiceConfig,omitempty"`
	Greeting      string         `json:"greeting"`
	SystemPrompt  string         `json:"systemPrompt,omitempty"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	BackgroundURL string         `json:"backgroundUrl,omitempty"`
	Status        string         `json:"status"`
	IsDefault     bool           `json:"isDefault"`
	SortOrder     int            `json:"sortOrder"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Active reports whether the character can be served to callers.
func (c *Character) Active() bool {
	return c.Status == CharacterStatusActive
}

// Conversation is one immutable chat turn.
type Conversation struct {
	ID                int64          `json:"id"`
	UserID            int64          `json:"userId"`
	CharacterID       int64          `json:"characterId"`
	UserMessage       string         `json:"userMessage"`
	AssistantResponse string         `json:"assistantResponse"`
	Intent            string         `json:"intent,omitempty"`
	Emotion           string         `json:"emotion,omitempty"`
	Type              string         `json:"conversationType"`
	SessionID         string         `json:"sessionId,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	SatisfactionScore *int           `json:"satisfactionScore,omitempty"`
	IsImportant       bool           `json:"isImportant"`
	Notes             string         `json:"notes,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}
