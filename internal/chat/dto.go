package chat

import (
	"time"

	"github.com/easeaico/familybot/internal/types"
)

// ChatRequest is the unified chat payload. Exactly one of Message and
// AudioBase64 must be non-empty.
type ChatRequest struct {
	Message          string         `json:"message,omitempty"`
	AudioBase64      string         `json:"audioBase64,omitempty"`
	UserKey          string         `json:"userId"`
	CharacterKey     string         `json:"characterId,omitempty"`
	SessionID        string         `json:"sessionId,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	ConversationType string         `json:"conversationType,omitempty"`
	VoiceConfig      map[string]any `json:"voiceConfig,omitempty"`
	ForceWebSearch   bool           `json:"forceWebSearch,omitempty"`
}

// Voice reports whether the turn carries an audio payload. ConversationType
// is advisory and only affects how the turn is recorded.
func (r ChatRequest) Voice() bool {
	return r.AudioBase64 != ""
}

// Response envelope status values.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// ChatResponse is the composed envelope returned for every chat turn,
// successful or not.
type ChatResponse struct {
	CharacterID   string         `json:"characterId,omitempty"`
	CharacterName string         `json:"characterName,omitempty"`
	Response      string         `json:"response,omitempty"`
	Emotion       string         `json:"emotion,omitempty"`
	Intent        string         `json:"intent,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	VoiceConfig   map[string]any `json:"voiceConfig,omitempty"`

	AudioURL    string `json:"audioUrl,omitempty"`
	AudioBase64 string `json:"audioBase64,omitempty"`

	ImageURL         string `json:"imageUrl,omitempty"`
	ImageBase64      string `json:"imageBase64,omitempty"`
	ImageDescription string `json:"imageDescription,omitempty"`
	EnhancedPrompt   string `json:"enhancedPrompt,omitempty"`

	Timestamp      time.Time `json:"timestamp"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`

	RagEnhanced   bool           `json:"ragEnhanced"`
	CotEnhanced   bool           `json:"cotEnhanced"`
	CotStepsCount int            `json:"cotStepsCount"`
	CotAnalysis   string         `json:"cotAnalysis,omitempty"`
	RouterInfo    map[string]any `json:"routerInfo,omitempty"`
}

// CharacterStats is the per-character usage summary.
type CharacterStats struct {
	ConversationCount   int64   `json:"conversationCount"`
	AverageSatisfaction float64 `json:"averageSatisfaction"`
}

// CharacterView is a character plus its usage stats, as listed to callers.
type CharacterView struct {
	types.Character
	Stats CharacterStats `json:"stats"`
}

// UserStats is the per-user usage summary.
type UserStats struct {
	UserKey             string    `json:"userId"`
	TotalConversations  int64     `json:"totalConversations"`
	AverageSatisfaction float64   `json:"averageSatisfaction"`
	RecentConversations int64     `json:"recentConversations"`
	LastActiveTime      time.Time `json:"lastActiveTime"`
}

// HistoryPage is one page of the conversation ledger, most recent first.
type HistoryPage struct {
	Conversations []types.Conversation `json:"conversations"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	Total         int64                `json:"total"`
}
