// Package auth 处理机器人连接网关时使用的令牌：签发、校验和权限检查
package auth

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrPermissionDenied = errors.New("permission denied")
	ErrMissingIdentity  = errors.New("token carries no bot identity")
)

// Permission 令牌授予的操作
type Permission string

const (
	PermReadMessage Permission = "read:message"
	PermSendMessage Permission = "send:message"
	PermJoinRoom    Permission = "join:room"
	PermAdminSystem Permission = "admin:system" // 拥有所有权限
)

// BotPermissions 机器人令牌默认携带的权限
func BotPermissions() []Permission {
	return []Permission{PermReadMessage, PermSendMessage, PermJoinRoom}
}

// TokenClaims 令牌声明中与机器人相关的部分
type TokenClaims struct {
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Bot         bool         `json:"bot"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   time.Time    `json:"exp"`
	IssuedAt    time.Time    `json:"iat"`
	Issuer      string       `json:"iss"`
}

// Expired 判断令牌在 now 时是否已过期，未设置过期时间的令牌永不过期
func (c *TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Authenticator 签发和校验令牌
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*TokenClaims, error)
	GenerateToken(ctx context.Context, userID, username string, permissions []Permission, expiration time.Duration) (string, error)
}

// HasPermission 检查claims是否具有任一权限
func HasPermission(claims *TokenClaims, permissions ...Permission) bool {
	if claims == nil {
		return false
	}
	if slices.Contains(claims.Permissions, PermAdminSystem) {
		return true
	}
	for _, p := range permissions {
		if slices.Contains(claims.Permissions, p) {
			return true
		}
	}
	return false
}
