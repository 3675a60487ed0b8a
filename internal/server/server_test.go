package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/familybot/internal/chat"
)

type stubService struct {
	chatResp   chat.ChatResponse
	chatErr    error
	greeting   string
	greetErr   error
	switchOK   bool
	switchErr  error
	history    chat.HistoryPage
	historyErr error
	stats      chat.UserStats
	statsErr   error
	views      []chat.CharacterView
	healthy    bool
}

func (s *stubService) ProcessChat(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
	return s.chatResp, s.chatErr
}

func (s *stubService) Characters(ctx context.Context) ([]chat.CharacterView, error) {
	return s.views, nil
}

func (s *stubService) Greeting(ctx context.Context, characterKey string) (string, error) {
	return s.greeting, s.greetErr
}

func (s *stubService) SwitchCharacter(ctx context.Context, userKey, characterKey string) (bool, error) {
	return s.switchOK, s.switchErr
}

func (s *stubService) History(ctx context.Context, userKey, characterKey string, page, size int) (chat.HistoryPage, error) {
	return s.history, s.historyErr
}

func (s *stubService) UserStats(ctx context.Context, userKey string) (chat.UserStats, error) {
	return s.stats, s.statsErr
}

func (s *stubService) AgentHealthy(ctx context.Context) bool {
	return s.healthy
}

func doRequest(t *testing.T, service ChatService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	server := NewServer(service, nil)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatSuccess(t *testing.T) {
	service := &stubService{chatResp: chat.ChatResponse{
		CharacterID:   "xiyang",
		CharacterName: "喜羊羊",
		Response:      "你好呀",
		Status:        chat.StatusSuccess,
		Timestamp:     time.Now(),
	}}

	rec := doRequest(t, service, http.MethodPost, "/api/v1/chat", `{"userId":"u1","characterId":"xiyang","message":"你好"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chat.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != chat.StatusSuccess || resp.Response != "你好呀" {
		t.Fatalf("unexpected envelope: %#v", resp)
	}
}

func TestChatValidationFailureIsBadRequest(t *testing.T) {
	service := &stubService{
		chatResp: chat.ChatResponse{Status: chat.StatusError, Error: "消息内容或语音数据不能为空"},
		chatErr:  fmt.Errorf("%w: empty payload", chat.ErrValidation),
	}

	rec := doRequest(t, service, http.MethodPost, "/api/v1/chat", `{"userId":"u1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "消息内容或语音数据不能为空") {
		t.Fatalf("validation message missing from body: %s", rec.Body.String())
	}
}

func TestChatUpstreamFailureIsServerError(t *testing.T) {
	service := &stubService{
		chatResp: chat.ChatResponse{Status: chat.StatusError, Error: "聊天服务暂时不可用，请稍后再试"},
		chatErr:  fmt.Errorf("agent down"),
	}

	rec := doRequest(t, service, http.MethodPost, "/api/v1/chat", `{"userId":"u1","message":"你好"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "agent down") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestGreetingNotFound(t *testing.T) {
	service := &stubService{greetErr: fmt.Errorf("%w: 角色不存在", chat.ErrNotFound)}

	rec := doRequest(t, service, http.MethodGet, "/api/v1/characters/ghost/greeting", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGreetingFound(t *testing.T) {
	service := &stubService{greeting: "爸爸妈妈好！"}

	rec := doRequest(t, service, http.MethodGet, "/api/v1/characters/xiyang/greeting", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["characterId"] != "xiyang" || body["greeting"] != "爸爸妈妈好！" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestSwitchInactiveCharacter(t *testing.T) {
	service := &stubService{switchOK: false}

	rec := doRequest(t, service, http.MethodPost, "/api/v1/characters/old/switch?userId=u1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSwitchSuccess(t *testing.T) {
	service := &stubService{switchOK: true}

	rec := doRequest(t, service, http.MethodPost, "/api/v1/characters/meiyang/switch?userId=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["success"] != true || body["characterId"] != "meiyang" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestUserStatsNotFound(t *testing.T) {
	service := &stubService{statsErr: fmt.Errorf("%w: 用户不存在", chat.ErrNotFound)}

	rec := doRequest(t, service, http.MethodGet, "/api/v1/users/ghost/stats", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	service := &stubService{healthy: true}

	rec := doRequest(t, service, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "healthy" || body["agent"] != true {
		t.Fatalf("unexpected body: %#v", body)
	}
}
