package storage

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/easeaico/familybot/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// One in-memory database per test, shared by every query.
	sqlDB.SetMaxOpenConns(1)

	store := newStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustCreateUser(t *testing.T, store *Store, userKey string) *types.User {
	t.Helper()
	user := &types.User{
		UserKey:      userKey,
		Username:     "用户" + userKey,
		Status:       types.UserStatusActive,
		LastActiveAt: time.Now(),
	}
	if err := store.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func mustCreateCharacter(t *testing.T, store *Store, character types.Character) *types.Character {
	t.Helper()
	if err := store.Characters.Create(context.Background(), &character); err != nil {
		t.Fatalf("failed to create character: %v", err)
	}
	return &character
}

func TestUserRepoRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.Users.GetByKey(ctx, "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %#v", missing)
	}

	created := mustCreateUser(t, store, "u1")
	if created.ID == 0 {
		t.Fatalf("expected generated id")
	}

	got, err := store.Users.GetByKey(ctx, "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil || got.Username != "用户u1" || got.Status != types.UserStatusActive {
		t.Fatalf("unexpected user: %#v", got)
	}

	later := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := store.Users.Touch(ctx, created.ID, later); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Users.SetDefaultCharacter(ctx, created.ID, "meiyang"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err = store.Users.GetByKey(ctx, "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.LastActiveAt.Equal(later) {
		t.Fatalf("last active not updated: %v vs %v", got.LastActiveAt, later)
	}
	if got.DefaultCharacter != "meiyang" {
		t.Fatalf("default character not updated: %s", got.DefaultCharacter)
	}
}

func TestCharacterRepoCreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := types.Character{CharacterKey: "xiyang", Name: "喜羊羊", Status: types.CharacterStatusActive, IsDefault: true, SortOrder: 1}
	duplicate := first
	mustCreateCharacter(t, store, first)
	mustCreateCharacter(t, store, duplicate)

	active, err := store.Characters.ListActive(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one character, got %d", len(active))
	}
}

func TestCharacterRepoListActiveOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateCharacter(t, store, types.Character{CharacterKey: "cc", Name: "C", Status: types.CharacterStatusActive, SortOrder: 3})
	mustCreateCharacter(t, store, types.Character{CharacterKey: "aa", Name: "A", Status: types.CharacterStatusActive, SortOrder: 2})
	mustCreateCharacter(t, store, types.Character{CharacterKey: "bb", Name: "B", Status: types.CharacterStatusActive, SortOrder: 1})
	mustCreateCharacter(t, store, types.Character{CharacterKey: "zz", Name: "Z", Status: types.CharacterStatusInactive, SortOrder: 0})

	active, err := store.Characters.ListActive(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected three active characters, got %d", len(active))
	}
	if active[0].CharacterKey != "bb" || active[1].CharacterKey != "aa" || active[2].CharacterKey != "cc" {
		t.Fatalf("unexpected ordering: %s, %s, %s", active[0].CharacterKey, active[1].CharacterKey, active[2].CharacterKey)
	}
}

func TestCharacterVoiceConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateCharacter(t, store, types.Character{
		CharacterKey: "meiyang",
		Name:         "美羊羊",
		Status:       types.CharacterStatusActive,
		VoiceConfig:  map[string]any{"voice": "female", "pitch": 1.2},
	})

	got, err := store.Characters.GetByKey(ctx, "meiyang")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil || got.VoiceConfig["voice"] != "female" {
		t.Fatalf("voice config lost: %#v", got)
	}
}

func TestConversationLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := mustCreateUser(t, store, "u1")
	xiyang := mustCreateCharacter(t, store, types.Character{CharacterKey: "xiyang", Name: "喜羊羊", Status: types.CharacterStatusActive})
	meiyang := mustCreateCharacter(t, store, types.Character{CharacterKey: "meiyang", Name: "美羊羊", Status: types.CharacterStatusActive})

	var last int64
	for i := 0; i < 5; i++ {
		conversation := &types.Conversation{
			UserID:            user.ID,
			CharacterID:       xiyang.ID,
			UserMessage:       "你好",
			AssistantResponse: "你好呀",
			Type:              types.ConversationTypeText,
			SessionID:         "s1",
			Context:           map[string]any{"channel": "app"},
		}
		if err := store.Conversations.Create(ctx, conversation); err != nil {
			t.Fatalf("failed to create conversation: %v", err)
		}
		if conversation.ID == 0 || conversation.CreatedAt.IsZero() {
			t.Fatalf("expected generated id and timestamp: %#v", conversation)
		}
		last = conversation.ID
	}
	other := &types.Conversation{UserID: user.ID, CharacterID: meiyang.ID, UserMessage: "在吗", AssistantResponse: "在呢", Type: types.ConversationTypeText}
	if err := store.Conversations.Create(ctx, other); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	page, err := store.Conversations.ListByPair(ctx, user.ID, xiyang.ID, 0, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected two rows, got %d", len(page))
	}
	if page[0].ID != last {
		t.Fatalf("expected most recent first, got id %d", page[0].ID)
	}
	if page[0].Context["channel"] != "app" {
		t.Fatalf("context blob lost: %#v", page[0].Context)
	}

	rest, err := store.Conversations.ListByPair(ctx, user.ID, xiyang.ID, 4, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected one row past the offset, got %d", len(rest))
	}

	pairCount, err := store.Conversations.CountByPair(ctx, user.ID, xiyang.ID)
	if err != nil || pairCount != 5 {
		t.Fatalf("unexpected pair count: %d, %v", pairCount, err)
	}
	userCount, err := store.Conversations.CountByUser(ctx, user.ID)
	if err != nil || userCount != 6 {
		t.Fatalf("unexpected user count: %d, %v", userCount, err)
	}
	characterCount, err := store.Conversations.CountByCharacter(ctx, meiyang.ID)
	if err != nil || characterCount != 1 {
		t.Fatalf("unexpected character count: %d, %v", characterCount, err)
	}
}

func TestConversationSatisfactionAverage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := mustCreateUser(t, store, "u1")
	character := mustCreateCharacter(t, store, types.Character{CharacterKey: "xiyang", Name: "喜羊羊", Status: types.CharacterStatusActive})

	average, err := store.Conversations.AverageSatisfactionByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if average != 0 {
		t.Fatalf("expected zero average with no scores, got %v", average)
	}

	for _, score := range []int{3, 5} {
		s := score
		conversation := &types.Conversation{
			UserID:            user.ID,
			CharacterID:       character.ID,
			UserMessage:       "你好",
			AssistantResponse: "你好呀",
			Type:              types.ConversationTypeText,
			SatisfactionScore: &s,
		}
		if err := store.Conversations.Create(ctx, conversation); err != nil {
			t.Fatalf("failed to create conversation: %v", err)
		}
	}
	unscored := &types.Conversation{UserID: user.ID, CharacterID: character.ID, UserMessage: "嗯", AssistantResponse: "嗯嗯", Type: types.ConversationTypeText}
	if err := store.Conversations.Create(ctx, unscored); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	average, err = store.Conversations.AverageSatisfactionByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if average != 4 {
		t.Fatalf("expected average 4, got %v", average)
	}

	average, err = store.Conversations.AverageSatisfactionByCharacter(ctx, character.ID)
	if err != nil || average != 4 {
		t.Fatalf("unexpected character average: %v, %v", average, err)
	}

	recent, err := store.Conversations.CountSince(ctx, user.ID, time.Now().Add(-time.Hour))
	if err != nil || recent != 3 {
		t.Fatalf("unexpected recent count: %d, %v", recent, err)
	}
	none, err := store.Conversations.CountSince(ctx, user.ID, time.Now().Add(time.Hour))
	if err != nil || none != 0 {
		t.Fatalf("unexpected future count: %d, %v", none, err)
	}
}

func TestSeedCharactersIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SeedCharacters(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.SeedCharacters(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	active, err := store.Characters.ListActive(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected three stock characters, got %d", len(active))
	}
	if active[0].CharacterKey != "xiyang" || !active[0].IsDefault {
		t.Fatalf("expected xiyang as flagged default, got %#v", active[0])
	}
}
