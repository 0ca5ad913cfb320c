package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobassist/internal/auth"
	"jobassist/internal/database"
)

const invalidCredentialsMessage = "invalid credentials"

// LoginLimits 控制登录速率限制与失败锁定。
type LoginLimits struct {
	RatePerHour   int
	LockThreshold int
	LockTTL       time.Duration
}

// AuthHandler 处理注册、登录、Google 登录与个人资料。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	logger      *slog.Logger
	limits      LoginLimits
}

// NewAuthHandler 构造认证处理器。redisClient 为 nil 时不做速率限制。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, limits LoginLimits) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		logger:      logger,
		limits:      limits,
	}
}

type userResponse struct {
	ID        uint          `json:"id"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Plan      database.Plan `json:"plan"`
	GoogleID  string        `json:"googleId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func newUserResponse(u database.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Plan:      u.Plan,
		GoogleID:  u.GoogleID,
		CreatedAt: u.CreatedAt,
	}
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required"`
}

// Signup 创建新用户账号并签发令牌。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := requestLogger(c, h.logger).With(slog.String("email", email))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		logger.Info("signup conflict: email already in use")
		BadRequest(c, "email already in use")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("signup lookup failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	user := database.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hashed,
		Plan:         database.PlanFree,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			BadRequest(c, "email already in use")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	token, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		logger.Error("generate token failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	logger.Info("user signed up", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, authResponse{User: newUserResponse(user), Token: token})
}

type signinRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signin 校验口令并返回令牌。仅 OAuth 登录的账号没有密码，同样视为凭据无效。
func (h *AuthHandler) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := requestLogger(c, h.logger).With(slog.String("email", email))

	if limited, msg := h.checkLoginLimits(ctx, c.ClientIP(), email); limited {
		logger.Warn("signin throttled", slog.String("reason", msg))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": msg})
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("signin failed: user not found")
			h.recordLoginFailure(ctx, email)
			BadRequest(c, invalidCredentialsMessage)
			return
		}
		logger.Error("signin query failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	if !user.HasPassword() || !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("signin failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		h.recordLoginFailure(ctx, email)
		BadRequest(c, invalidCredentialsMessage)
		return
	}

	h.clearLoginFailures(ctx, email)

	token, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		logger.Error("generate token failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, authResponse{User: newUserResponse(user), Token: token})
}

type googleAuthRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	GoogleID string `json:"googleId" binding:"required"`
}

// GoogleAuth 按邮箱创建或关联 Google 账号并签发令牌。
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	var req googleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := requestLogger(c, h.logger).With(slog.String("email", email))

	var user database.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = database.User{
			Email:    email,
			Name:     strings.TrimSpace(req.Name),
			GoogleID: req.GoogleID,
			Plan:     database.PlanFree,
		}
		if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
			logger.Error("create google user failed", slog.Any("error", err))
			Internal(c, "internal server error")
			return
		}
		logger.Info("google user created", slog.Uint64("user_id", uint64(user.ID)))
	case err != nil:
		logger.Error("google auth lookup failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	default:
		updates := map[string]any{}
		if user.GoogleID == "" {
			updates["google_id"] = req.GoogleID
		}
		if user.Name == "" && strings.TrimSpace(req.Name) != "" {
			updates["name"] = strings.TrimSpace(req.Name)
		}
		if len(updates) > 0 {
			if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				logger.Error("link google account failed", slog.Any("error", err))
				Internal(c, "internal server error")
				return
			}
			logger.Info("google account linked", slog.Uint64("user_id", uint64(user.ID)))
		}
	}

	token, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		logger.Error("generate token failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, authResponse{User: newUserResponse(user), Token: token})
}

// Me 返回当前用户资料。
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		requestLogger(c, h.logger).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type updateProfileRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// UpdateMe 更新当前用户的显示名称。
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "internal server error")
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := h.db.WithContext(ctx).Model(&user).Update("name", name).Error; err != nil {
		requestLogger(c, h.logger).Error("update profile failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	user.Name = name
	c.JSON(http.StatusOK, newUserResponse(user))
}

// checkLoginLimits 检查 IP+邮箱 的小时速率与账号锁定。Redis 不可用时放行。
func (h *AuthHandler) checkLoginLimits(ctx context.Context, ip, email string) (bool, string) {
	if h.redis == nil {
		return false, ""
	}

	if h.limits.RatePerHour > 0 {
		rateKey := "rate:login:" + ip + ":" + email + ":" + time.Now().UTC().Format("2006010215")
		count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
		if err == nil && count > int64(h.limits.RatePerHour) {
			return true, "rate limit exceeded"
		}
	}

	if ttl, err := h.redis.TTL(ctx, "lock:login:"+email).Result(); err == nil && ttl > 0 {
		return true, "account temporarily locked"
	}
	return false, ""
}

func (h *AuthHandler) recordLoginFailure(ctx context.Context, email string) {
	if h.redis == nil || h.limits.LockThreshold <= 0 {
		return
	}
	count, err := incrWithTTL(ctx, h.redis, "lock:login:fail:"+email, h.limits.LockTTL)
	if err != nil {
		return
	}
	if count >= int64(h.limits.LockThreshold) {
		_ = h.redis.Set(ctx, "lock:login:"+email, "1", h.limits.LockTTL).Err()
	}
}

func (h *AuthHandler) clearLoginFailures(ctx context.Context, email string) {
	if h.redis == nil {
		return
	}
	_ = h.redis.Del(ctx, "lock:login:fail:"+email).Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
