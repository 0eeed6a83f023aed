package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 定义管理令牌相关的错误类型
var (
	// ErrInvalidToken 表示提供的管理令牌无效或格式错误
	ErrInvalidToken = errors.New("invalid token")
)

// Claims 定义管理令牌中的声明结构。
// 管理接口按操作者粒度授权，与函数调用令牌相互独立。
type Claims struct {
	// UserID 操作者的唯一标识符
	UserID string `json:"user_id"`
	// Role 操作者角色，用于权限控制
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 是管理令牌管理器，负责令牌的签发和验证
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager 创建管理令牌管理器。
// secret 应是安全的随机字符串，expiration 是令牌有效期。
func NewJWTManager(secret string, expiration time.Duration) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Generate 为指定操作者签发一个管理令牌
func (m *JWTManager) Generate(userID, role string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate 验证管理令牌并提取声明信息。
// 过期、签名错误等一律返回 ErrInvalidToken，不向外区分失败细节。
func (m *JWTManager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
