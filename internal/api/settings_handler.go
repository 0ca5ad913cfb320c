package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobassist/internal/database"
	"jobassist/internal/documents"
)

// SettingsHandler 管理用户的模型供应商密钥与 LLM 设置。
type SettingsHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSettingsHandler 构造 SettingsHandler。
func NewSettingsHandler(db *gorm.DB, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{db: db, logger: logger}
}

type apiKeysResponse struct {
	OpenAIAPIKey   string `json:"openaiApiKey"`
	GrokAPIKey     string `json:"grokApiKey"`
	DeepseekAPIKey string `json:"deepseekApiKey"`
	GeminiAPIKey   string `json:"geminiApiKey"`
}

func newAPIKeysResponse(u database.User) apiKeysResponse {
	return apiKeysResponse{
		OpenAIAPIKey:   u.OpenAIAPIKey,
		GrokAPIKey:     u.GrokAPIKey,
		DeepseekAPIKey: u.DeepseekAPIKey,
		GeminiAPIKey:   u.GeminiAPIKey,
	}
}

type updateAPIKeysRequest struct {
	OpenAIAPIKey   *string `json:"openaiApiKey"`
	GrokAPIKey     *string `json:"grokApiKey"`
	DeepseekAPIKey *string `json:"deepseekApiKey"`
	GeminiAPIKey   *string `json:"geminiApiKey"`
}

// GetAPIKeys 返回用户保存的四个供应商密钥。
func (h *SettingsHandler) GetAPIKeys(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newAPIKeysResponse(*user))
}

// UpdateAPIKeys 更新请求中提供的密钥，不做格式校验。
func (h *SettingsHandler) UpdateAPIKeys(c *gin.Context) {
	var req updateAPIKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	updates := map[string]any{}
	if req.OpenAIAPIKey != nil {
		updates["openai_api_key"] = *req.OpenAIAPIKey
		user.OpenAIAPIKey = *req.OpenAIAPIKey
	}
	if req.GrokAPIKey != nil {
		updates["grok_api_key"] = *req.GrokAPIKey
		user.GrokAPIKey = *req.GrokAPIKey
	}
	if req.DeepseekAPIKey != nil {
		updates["deepseek_api_key"] = *req.DeepseekAPIKey
		user.DeepseekAPIKey = *req.DeepseekAPIKey
	}
	if req.GeminiAPIKey != nil {
		updates["gemini_api_key"] = *req.GeminiAPIKey
		user.GeminiAPIKey = *req.GeminiAPIKey
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(&database.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			requestLogger(c, h.logger).Error("update api keys failed", slog.Any("error", err))
			Internal(c, "internal server error")
			return
		}
	}
	c.JSON(http.StatusOK, newAPIKeysResponse(*user))
}

// GetLLMSettings 返回用户的 LLM 设置，未配置时返回 404。
func (h *SettingsHandler) GetLLMSettings(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var settings database.LLMSettings
	err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "llm settings not found")
		return
	}
	if err != nil {
		requestLogger(c, h.logger).Error("load llm settings failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, settings)
}

type updateLLMSettingsRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"max=128"`
	APIKey   string `json:"apiKey" binding:"max=512"`
}

// UpdateLLMSettings 创建或更新用户的 LLM 设置。
func (h *SettingsHandler) UpdateLLMSettings(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateLLMSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !documents.ValidProvider(provider) {
		BadRequest(c, "unsupported provider")
		return
	}

	settings := database.LLMSettings{
		UserID:   userID,
		Provider: provider,
		Model:    strings.TrimSpace(req.Model),
		APIKey:   req.APIKey,
	}
	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "model", "api_key", "updated_at"}),
	}).Create(&settings).Error; err != nil {
		requestLogger(c, h.logger).Error("upsert llm settings failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	var stored database.LLMSettings
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&stored).Error; err != nil {
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *SettingsHandler) loadUser(c *gin.Context) (*database.User, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	var user database.User
	err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "user not found")
		return nil, false
	}
	if err != nil {
		requestLogger(c, h.logger).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return nil, false
	}
	return &user, true
}
