// Package auth 提供身份认证和授权相关的功能。
// 该包实现了两层认证机制：管理接口使用 JWT 令牌，
// 函数调用接口使用注册时签发的逐函数调用令牌。
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oriys/conjure/internal/domain"
)

// IssueToken 签发一个新的函数调用令牌。
// 令牌在函数注册时生成一次，随函数记录持久化，
// 轮换通过重新注册或显式更新完成。
func IssueToken() string {
	return uuid.NewString()
}

// BearerToken 从 Authorization 头中提取 Bearer 令牌。
// 按失败形态返回不同的错误，便于调用方给出准确的拒绝原因：
// 头缺失、格式不是 Bearer、以及 Bearer 后为空。
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrMissingCredential
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", domain.ErrMalformedCredential
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", domain.ErrEmptyToken
	}
	return token, nil
}

// VerifyFunctionToken 校验调用令牌与函数持有的令牌是否一致。
// 比较使用恒定时间算法，不因前缀匹配长度泄露信息。
func VerifyFunctionToken(presented, expected string) error {
	if expected == "" {
		// 记录尚未持有令牌（迁移未执行），一律拒绝
		return domain.ErrTokenMismatch
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return domain.ErrTokenMismatch
	}
	return nil
}
