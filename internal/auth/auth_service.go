package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrEmptyToken 表示请求未携带令牌内容。
	ErrEmptyToken = errors.New("token string is empty")
	// ErrInvalidToken 表示令牌无法被任何已配置的密钥验证。
	ErrInvalidToken = errors.New("invalid token")
)

// AuthService 负责密码哈希、JWT 签发与校验。
// 使用第一个密钥签名；校验时按顺序尝试全部密钥。
type AuthService struct {
	secrets  [][]byte
	tokenTTL time.Duration
}

// TokenClaims 表示 JWT 中的业务字段，便于中间件读取用户信息。
type TokenClaims struct {
	UserID uint `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService 使用有序密钥列表构造服务实例。
func NewAuthService(secrets []string, tokenTTL time.Duration) (*AuthService, error) {
	keys := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			continue
		}
		keys = append(keys, []byte(s))
	}
	if len(keys) == 0 {
		return nil, errors.New("at least one signing secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{secrets: keys, tokenTTL: tokenTTL}, nil
}

// HashPassword 使用 bcrypt 生成密码哈希。
func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

// CheckPasswordHash 校验密码是否匹配哈希；空哈希一律不匹配。
func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	return CheckPasswordHash(password, hash)
}

// GenerateToken 为用户签发访问令牌。
func (s *AuthService) GenerateToken(userID uint) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secrets[0])
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken 依次使用每个密钥解析令牌，任一成功即返回。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	var lastErr error
	for _, secret := range s.secrets {
		claims, err := parseWithSecret(tokenString, secret)
		if err == nil {
			return claims, nil
		}
		lastErr = err
		if errors.Is(err, jwt.ErrTokenMalformed) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

// verifyMethods 为验签接受的算法；签发固定使用 HS256。
var verifyMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

func parseWithSecret(tokenString string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods(verifyMethods))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	if claims.UserID == 0 {
		id, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || id == 0 {
			return nil, errors.New("token carries no user id")
		}
		claims.UserID = uint(id)
	}
	return claims, nil
}

// TokenTTL 暴露访问令牌有效期。
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
