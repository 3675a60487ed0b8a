package chat

import (
	"context"
	"time"

	"github.com/easeaico/familybot/internal/agent"
	"github.com/easeaico/familybot/internal/types"
)

// UserRepo provides access to users. Lookups return (nil, nil) when the
// record does not exist.
type UserRepo interface {
	GetByKey(ctx context.Context, userKey string) (*types.User, error)
	Create(ctx context.Context, user *types.User) error
	Touch(ctx context.Context, id int64, at time.Time) error
	SetDefaultCharacter(ctx context.Context, id int64, characterKey string) error
}

// CharacterRepo provides access to characters. Lookups return (nil, nil)
// when the record does not exist.
type CharacterRepo interface {
	GetByKey(ctx context.Context, characterKey string) (*types.Character, error)
	// ListActive returns active characters ordered by sort order, then
	// creation time, then id.
	ListActive(ctx context.Context) ([]types.Character, error)
	// Create inserts a character; a duplicate key is a no-op, not an error.
	Create(ctx context.Context, character *types.Character) error
}

// ConversationRepo is the turn ledger.
type ConversationRepo interface {
	Create(ctx context.Context, conversation *types.Conversation) error
	// ListByPair returns turns for a (user, character) pair ordered by
	// creation time descending.
	ListByPair(ctx context.Context, userID, characterID int64, offset, limit int) ([]types.Conversation, error)
	CountByPair(ctx context.Context, userID, characterID int64) (int64, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	CountByCharacter(ctx context.Context, characterID int64) (int64, error)
	AverageSatisfactionByUser(ctx context.Context, userID int64) (float64, error)
	AverageSatisfactionByCharacter(ctx context.Context, characterID int64) (float64, error)
	CountSince(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// Agent is the downstream inference service.
type Agent interface {
	SendText(ctx context.Context, req agent.TextRequest) (*agent.Reply, error)
	SendAudio(ctx context.Context, req agent.AudioRequest) (*agent.Reply, error)
	Healthy(ctx context.Context) bool
}
