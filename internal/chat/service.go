// Package chat orchestrates a chat turn: it resolves the user and character,
// forwards the utterance to the agent service, records the turn, and composes
// the response envelope.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/easeaico/familybot/internal/agent"
	"github.com/easeaico/familybot/internal/types"
)

// ErrValidation marks client-input errors; their message is safe to echo.
var ErrValidation = errors.New("invalid request")

// ErrNotFound marks direct entity lookups that failed.
var ErrNotFound = errors.New("not found")

// errUpstream marks infrastructure failures behind the generic caller
// message.
var errUpstream = errors.New("upstream failure")

// Caller-facing messages.
const (
	msgUserKeyRequired     = "用户ID不能为空"
	msgUserKeyInvalid      = "用户ID格式无效"
	msgCharacterKeyInvalid = "角色ID格式无效"
	msgPayloadRequired     = "消息内容或语音数据不能为空"
	msgServiceUnavailable  = "聊天服务暂时不可用，请稍后再试"
	msgUserNotFound        = "用户不存在"
	msgCharacterNotFound   = "角色不存在"

	errorCharacterName = "系统"
	errorResponseText  = "抱歉，我现在有些问题，请稍后再试。"
)

const recentStatsWindow = 7 * 24 * time.Hour

// Service implements the chat-turn flow and the read-side endpoints around
// it.
type Service struct {
	users         UserRepo
	characters    CharacterRepo
	conversations ConversationRepo
	agent         Agent
	logger        *zap.Logger
	now           func() time.Time
}

// NewService wires the service from its collaborators.
func NewService(users UserRepo, characters CharacterRepo, conversations ConversationRepo, agentClient Agent, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:         users,
		characters:    characters,
		conversations: conversations,
		agent:         agentClient,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessChat handles one turn end to end. The envelope is always populated;
// the returned error only classifies the failure for the transport layer.
func (s *Service) ProcessChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if msg, ok := validate(req); !ok {
		return ChatResponse{
			CharacterID: req.CharacterKey,
			Timestamp:   s.now(),
			Status:      StatusError,
			Error:       msg,
		}, fmt.Errorf("%w: %s", ErrValidation, msg)
	}

	user, err := s.getOrCreateUser(ctx, req.UserKey)
	if err != nil {
		s.logger.Error("failed to resolve user", zap.String("userId", req.UserKey), zap.Error(err))
		return errorEnvelope(req.CharacterKey, msgServiceUnavailable, s.now()), errUpstream
	}
	if err := s.users.Touch(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last active time", zap.String("userId", user.UserKey), zap.Error(err))
	}

	character, err := s.resolveCharacter(ctx, req.CharacterKey)
	if err != nil {
		s.logger.Error("failed to resolve character", zap.String("characterId", req.CharacterKey), zap.Error(err))
		return errorEnvelope(req.CharacterKey, msgServiceUnavailable, s.now()), errUpstream
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	threadID := ThreadID(user.UserKey, character.CharacterKey)

	reply, err := s.callAgent(ctx, req, user, character, threadID)
	if err != nil {
		s.logger.Error("agent call failed",
			zap.String("userId", user.UserKey),
			zap.String("characterId", character.CharacterKey),
			zap.String("threadId", threadID),
			zap.Error(err))
		return errorEnvelope(character.CharacterKey, msgServiceUnavailable, s.now()), errUpstream
	}
	if reply.Response == "" {
		s.logger.Error("agent returned empty reply",
			zap.String("userId", user.UserKey),
			zap.String("characterId", character.CharacterKey))
		return errorEnvelope(character.CharacterKey, msgServiceUnavailable, s.now()), errUpstream
	}

	// A turn is recorded only once the agent has answered; failed calls
	// leave no ledger row.
	conversation := &types.Conversation{
		UserID:            user.ID,
		CharacterID:       character.ID,
		UserMessage:       turnInput(req),
		AssistantResponse: reply.Response,
		Intent:            reply.Intent,
		Emotion:           reply.Emotion,
		Type:              turnType(req),
		SessionID:         sessionID,
		Context:           req.Context,
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		s.logger.Error("failed to record conversation",
			zap.String("userId", user.UserKey),
			zap.String("characterId", character.CharacterKey),
			zap.Error(err))
		return errorEnvelope(character.CharacterKey, msgServiceUnavailable, s.now()), errUpstream
	}

	return composeEnvelope(character, reply, conversation, sessionID), nil
}

func (s *Service) callAgent(ctx context.Context, req ChatRequest, user *types.User, character *types.Character, threadID string) (*agent.Reply, error) {
	if req.Voice() {
		return s.agent.SendAudio(ctx, agent.AudioRequest{
			UserKey:      user.UserKey,
			CharacterKey: character.CharacterKey,
			ThreadID:     threadID,
			AudioBase64:  req.AudioBase64,
			Context:      req.Context,
		})
	}
	return s.agent.SendText(ctx, agent.TextRequest{
		UserKey:        user.UserKey,
		CharacterKey:   character.CharacterKey,
		ThreadID:       threadID,
		Message:        req.Message,
		VoiceConfig:    req.VoiceConfig,
		ForceWebSearch: req.ForceWebSearch,
		Context:        req.Context,
	})
}

func validate(req ChatRequest) (string, bool) {
	if req.UserKey == "" {
		return msgUserKeyRequired, false
	}
	if !ValidKey(req.UserKey) {
		return msgUserKeyInvalid, false
	}
	if req.CharacterKey != "" && !ValidKey(req.CharacterKey) {
		return msgCharacterKeyInvalid, false
	}
	if req.Message == "" && req.AudioBase64 == "" {
		return msgPayloadRequired, false
	}
	return "", true
}

func (s *Service) getOrCreateUser(ctx context.Context, userKey string) (*types.User, error) {
	user, err := s.users.GetByKey(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &types.User{
		UserKey:          userKey,
		Username:         "用户" + userKey,
		DefaultCharacter: builtinCharacterKey,
		Status:           types.UserStatusActive,
		LastActiveAt:     s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("created user on first contact", zap.String("userId", userKey))
	return user, nil
}

// resolveCharacter maps a raw character key to an active character. The chat
// path never fails for lack of configuration: an unknown or inactive key
// falls back to the default character, and an empty character table yields
// the built-in one.
func (s *Service) resolveCharacter(ctx context.Context, characterKey string) (*types.Character, error) {
	if characterKey != "" {
		character, err := s.characters.GetByKey(ctx, characterKey)
		if err != nil {
			return nil, err
		}
		if character != nil && character.Active() {
			return character, nil
		}
	}
	return s.defaultCharacter(ctx)
}

func (s *Service) defaultCharacter(ctx context.Context) (*types.Character, error) {
	active, err := s.characters.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if active[i].IsDefault {
			return &active[i], nil
		}
	}
	if len(active) > 0 {
		return &active[0], nil
	}

	// No active character at all: persist the built-in one. Insertion is
	// idempotent, so concurrent first turns converge on the same row.
	builtin := builtinCharacter()
	if err := s.characters.Create(ctx, builtin); err != nil {
		return nil, fmt.Errorf("failed to create built-in character: %w", err)
	}
	character, err := s.characters.GetByKey(ctx, builtinCharacterKey)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, fmt.Errorf("built-in character missing after creation")
	}
	s.logger.Info("created built-in character", zap.String("characterId", character.CharacterKey))
	return character, nil
}

func turnInput(req ChatRequest) string {
	if req.Voice() {
		return types.AudioInputMarker
	}
	return req.Message
}

func turnType(req ChatRequest) string {
	if req.Voice() || req.ConversationType == types.ConversationTypeVoice {
		return types.ConversationTypeVoice
	}
	return types.ConversationTypeText
}

func composeEnvelope(character *types.Character, reply *agent.Reply, conversation *types.Conversation, sessionID string) ChatResponse {
	resp := ChatResponse{
		CharacterID:   reply.CharacterKey,
		CharacterName: reply.CharacterName,
		Response:      reply.Response,
		Emotion:       reply.Emotion,
		Intent:        reply.Intent,
		SessionID:     sessionID,
		VoiceConfig:   reply.VoiceConfig,

		AudioURL:    reply.AudioURL,
		AudioBase64: reply.AudioBase64,

		ImageURL:         reply.ImageURL,
		ImageBase64:      reply.ImageBase64,
		ImageDescription: reply.ImageDescription,
		EnhancedPrompt:   reply.EnhancedPrompt,

		Timestamp:      conversation.CreatedAt,
		ConversationID: conversation.ID,
		Status:         StatusSuccess,

		RagEnhanced:   reply.RagEnhanced,
		CotEnhanced:   reply.CotEnhanced,
		CotStepsCount: reply.CotStepsCount,
		CotAnalysis:   reply.CotAnalysis,
		RouterInfo:    reply.RouterInfo,
	}
	if resp.CharacterID == "" {
		resp.CharacterID = character.CharacterKey
	}
	if resp.CharacterName == "" {
		resp.CharacterName = character.Name
	}
	if resp.VoiceConfig == nil {
		resp.VoiceConfig = character.VoiceConfig
	}
	return resp
}

func errorEnvelope(characterKey, message string, at time.Time) ChatResponse {
	return ChatResponse{
		CharacterID:   characterKey,
		CharacterName: errorCharacterName,
		Response:      errorResponseText,
		Emotion:       "error",
		Timestamp:     at,
		Status:        StatusError,
		Error:         message,
	}
}

// History returns one ledger page for a (user, character) pair, most recent
// turn first.
func (s *Service) History(ctx context.Context, userKey, characterKey string, page, size int) (HistoryPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}

	user, character, err := s.lookupPair(ctx, userKey, characterKey)
	if err != nil {
		return HistoryPage{}, err
	}

	conversations, err := s.conversations.ListByPair(ctx, user.ID, character.ID, page*size, size)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	total, err := s.conversations.CountByPair(ctx, user.ID, character.ID)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to count conversations: %w", err)
	}

	return HistoryPage{Conversations: conversations, Page: page, Size: size, Total: total}, nil
}

// UserStats aggregates ledger counts for one user.
func (s *Service) UserStats(ctx context.Context, userKey string) (UserStats, error) {
	user, err := s.users.GetByKey(ctx, userKey)
	if err != nil {
		return UserStats{}, err
	}
	if user == nil {
		return UserStats{}, fmt.Errorf("%w: %s", ErrNotFound, msgUserNotFound)
	}

	total, err := s.conversations.CountByUser(ctx, user.ID)
	if err != nil {
		return UserStats{}, fmt.Errorf("failed to count conversations: %w", err)
	}
	average, err := s.conversations.AverageSatisfactionByUser(ctx, user.ID)
	if err != nil {
		return UserStats{}, fmt.Errorf("failed to average satisfaction: %w", err)
	}
	recent, err := s.conversations.CountSince(ctx, user.ID, s.now().Add(-recentStatsWindow))
	if err != nil {
		return UserStats{}, fmt.Errorf("failed to count recent conversations: %w", err)
	}

	return UserStats{
		UserKey:             user.UserKey,
		TotalConversations:  total,
		AverageSatisfaction: average,
		RecentConversations: recent,
		LastActiveTime:      user.LastActiveAt,
	}, nil
}

// Characters lists active characters with their usage stats, sorted the same
// way the fallback chain scans them.
func (s *Service) Characters(ctx context.Context) ([]CharacterView, error) {
	active, err := s.characters.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}

	views := make([]CharacterView, 0, len(active))
	for _, character := range active {
		count, err := s.conversations.CountByCharacter(ctx, character.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count conversations: %w", err)
		}
		average, err := s.conversations.AverageSatisfactionByCharacter(ctx, character.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to average satisfaction: %w", err)
		}
		views = append(views, CharacterView{
			Character: character,
			Stats:     CharacterStats{ConversationCount: count, AverageSatisfaction: average},
		})
	}
	return views, nil
}

// SwitchCharacter updates the user's default character. It reports false
// without error when the character exists but is inactive.
func (s *Service) SwitchCharacter(ctx context.Context, userKey, characterKey string) (bool, error) {
	user, err := s.users.GetByKey(ctx, userKey)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, msgUserNotFound)
	}

	character, err := s.characters.GetByKey(ctx, characterKey)
	if err != nil {
		return false, err
	}
	if character == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, msgCharacterNotFound)
	}
	if !character.Active() {
		return false, nil
	}

	if err := s.users.SetDefaultCharacter(ctx, user.ID, characterKey); err != nil {
		return false, fmt.Errorf("failed to switch character: %w", err)
	}
	return true, nil
}

// Greeting returns a character's greeting. Unlike the chat path, an unknown
// key surfaces as not found.
func (s *Service) Greeting(ctx context.Context, characterKey string) (string, error) {
	character, err := s.characters.GetByKey(ctx, characterKey)
	if err != nil {
		return "", err
	}
	if character == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, msgCharacterNotFound)
	}
	return character.Greeting, nil
}

// AgentHealthy probes the downstream agent.
func (s *Service) AgentHealthy(ctx context.Context) bool {
	return s.agent.Healthy(ctx)
}

func (s *Service) lookupPair(ctx context.Context, userKey, characterKey string) (*types.User, *types.Character, error) {
	user, err := s.users.GetByKey(ctx, userKey)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, msgUserNotFound)
	}
	character, err := s.characters.GetByKey(ctx, characterKey)
	if err != nil {
		return nil, nil, err
	}
	if character == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, msgCharacterNotFound)
	}
	return user, character, nil
}
