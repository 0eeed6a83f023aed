package auth

import (
	"context"
	"net/http"
)

// contextKey 是 context 存储键的自定义类型，避免与其他包冲突
type contextKey string

// UserContextKey 是请求上下文中存储操作者信息的键
const UserContextKey contextKey = "user"

// UserContext 存储已认证操作者的上下文信息
type UserContext struct {
	// UserID 操作者的唯一标识符
	UserID string
	// Role 操作者角色
	Role string
}

// Middleware 是管理接口的认证中间件。
// 函数调用接口不经过它：调用令牌按函数校验，发生在调用编排层。
type Middleware struct {
	jwt *JWTManager
	// enabled 为 false 时跳过所有认证检查，用于本地开发
	enabled bool
}

// NewMiddleware 创建管理接口认证中间件
func NewMiddleware(jwt *JWTManager, enabled bool) *Middleware {
	return &Middleware{jwt: jwt, enabled: enabled}
}

// Authenticate 验证管理请求携带的 Bearer 管理令牌。
// 认证成功后操作者信息被存入请求 context。
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		token, err := BearerToken(r)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims, err := m.jwt.Validate(token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		user := &UserContext{UserID: claims.UserID, Role: claims.Role}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUser 从请求上下文中提取已认证的操作者信息，未认证时返回 nil
func GetUser(ctx context.Context) *UserContext {
	if user, ok := ctx.Value(UserContextKey).(*UserContext); ok {
		return user
	}
	return nil
}
