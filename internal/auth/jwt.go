package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims JWT令牌的声明
type JWTClaims struct {
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Bot         bool         `json:"bot,omitempty"`
	Permissions []Permission `json:"permissions"`
	jwt.RegisteredClaims
}

func (c *JWTClaims) toTokenClaims() *TokenClaims {
	tc := &TokenClaims{
		UserID:      c.UserID,
		Username:    c.Username,
		Bot:         c.Bot,
		Permissions: c.Permissions,
		Issuer:      c.Issuer,
	}
	if tc.UserID == "" {
		tc.UserID = c.Subject
	}
	if c.ExpiresAt != nil {
		tc.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		tc.IssuedAt = c.IssuedAt.Time
	}
	return tc
}

// JWTService 使用HMAC密钥签发和校验机器人令牌
type JWTService struct {
	secretKey []byte
	issuer    string
}

func NewJWTService(secretKey, issuer string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// GenerateToken 签发机器人令牌，expiration <= 0 时不设置过期时间
func (s *JWTService) GenerateToken(ctx context.Context, userID, username string, permissions []Permission, expiration time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingIdentity
	}
	now := time.Now()
	claims := JWTClaims{
		UserID:      userID,
		Username:    username,
		Bot:         true,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID,
		},
	}
	if expiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiration))
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign token", "error", err, "user_id", userID)
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// Authenticate 校验签名、有效期和签发者
func (s *JWTService) Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer))
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		slog.InfoContext(ctx, "token expired or not yet valid", "error", err)
		return nil, ErrTokenExpired
	default:
		slog.WarnContext(ctx, "token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.toTokenClaims(), nil
}

// CheckPermission 实现权限检查
func (s *JWTService) CheckPermission(claims *TokenClaims, permission Permission) bool {
	return HasPermission(claims, permission)
}

// Inspect 不校验签名地读取令牌声明。机器人端没有网关密钥，只用它确定自身身份和权限
func Inspect(tokenString string) (*TokenClaims, error) {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tc := claims.toTokenClaims()
	if tc.UserID == "" {
		return nil, ErrMissingIdentity
	}
	if tc.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	return tc, nil
}

var _ Authenticator = (*JWTService)(nil)
