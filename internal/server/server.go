// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/easeaico/familybot/internal/chat"
)

// ChatService is the part of the chat service the routes need.
type ChatService interface {
	ProcessChat(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error)
	Characters(ctx context.Context) ([]chat.CharacterView, error)
	Greeting(ctx context.Context, characterKey string) (string, error)
	SwitchCharacter(ctx context.Context, userKey, characterKey string) (bool, error)
	History(ctx context.Context, userKey, characterKey string, page, size int) (chat.HistoryPage, error)
	UserStats(ctx context.Context, userKey string) (chat.UserStats, error)
	AgentHealthy(ctx context.Context) bool
}

// Server is the HTTP front of the service.
type Server struct {
	echo    *echo.Echo
	service ChatService
	logger  *zap.Logger
}

// NewServer builds the route table.
func NewServer(service ChatService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, service: service, logger: logger}

	api := e.Group("/api/v1")
	api.POST("/chat", s.handleChat)
	api.GET("/characters", s.handleCharacters)
	api.GET("/characters/:characterId/greeting", s.handleGreeting)
	api.POST("/characters/:characterId/switch", s.handleSwitch)
	api.GET("/conversations", s.handleConversations)
	api.GET("/users/:userId/stats", s.handleUserStats)
	api.GET("/health", s.handleHealth)
	api.GET("/info", s.handleInfo)

	return s
}

// Start begins serving on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleChat(c echo.Context) error {
	var req chat.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, chat.ChatResponse{
			Status:    chat.StatusError,
			Error:     "请求格式无效",
			Timestamp: time.Now(),
		})
	}

	s.logger.Info("chat request",
		zap.String("userId", req.UserKey),
		zap.String("characterId", req.CharacterKey),
		zap.Bool("voice", req.Voice()))

	resp, err := s.service.ProcessChat(c.Request().Context(), req)
	switch {
	case err == nil:
		s.logger.Info("chat processed",
			zap.String("characterName", resp.CharacterName),
			zap.Int("responseLength", len(resp.Response)))
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, chat.ErrValidation):
		s.logger.Warn("invalid chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, resp)
	default:
		s.logger.Error("chat processing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, resp)
	}
}

func (s *Server) handleCharacters(c echo.Context) error {
	characters, err := s.service.Characters(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list characters", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "服务暂时不可用"})
	}
	return c.JSON(http.StatusOK, characters)
}

func (s *Server) handleGreeting(c echo.Context) error {
	characterKey := c.Param("characterId")
	greeting, err := s.service.Greeting(c.Request().Context(), characterKey)
	if errors.Is(err, chat.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "角色不存在"})
	}
	if err != nil {
		s.logger.Error("failed to get greeting", zap.String("characterId", characterKey), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "服务暂时不可用"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"characterId": characterKey,
		"greeting":    greeting,
	})
}

func (s *Server) handleSwitch(c echo.Context) error {
	characterKey := c.Param("characterId")
	userKey := c.QueryParam("userId")

	ok, err := s.service.SwitchCharacter(c.Request().Context(), userKey, characterKey)
	if errors.Is(err, chat.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"success": false, "message": "用户或角色不存在"})
	}
	if err != nil {
		s.logger.Error("failed to switch character", zap.String("characterId", characterKey), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": "角色切换失败"})
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "角色切换失败，角色可能不可用"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"message":     "角色切换成功",
		"characterId": characterKey,
	})
}

func (s *Server) handleConversations(c echo.Context) error {
	userKey := c.QueryParam("userId")
	characterKey := c.QueryParam("characterId")
	page := intQueryParam(c, "page", 0)
	size := intQueryParam(c, "size", 20)

	history, err := s.service.History(c.Request().Context(), userKey, characterKey, page, size)
	if errors.Is(err, chat.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "用户或角色不存在"})
	}
	if err != nil {
		s.logger.Error("failed to load history", zap.String("userId", userKey), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "服务暂时不可用"})
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) handleUserStats(c echo.Context) error {
	userKey := c.Param("userId")
	stats, err := s.service.UserStats(c.Request().Context(), userKey)
	if errors.Is(err, chat.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "用户不存在"})
	}
	if err != nil {
		s.logger.Error("failed to load user stats", zap.String("userId", userKey), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "服务暂时不可用"})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "FamilyBot Backend",
		"agent":     s.service.AgentHealthy(c.Request().Context()),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"serviceName": "FamilyBot Backend",
		"version":     "1.0.0",
		"description": "面向留守老人的AI陪伴系统后端服务",
		"features": []string{
			"多角色AI对话",
			"语音交互支持",
			"对话历史管理",
			"用户统计",
		},
	})
}

func intQueryParam(c echo.Context, name string, defaultVal int) int {
	if val := c.QueryParam(name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
