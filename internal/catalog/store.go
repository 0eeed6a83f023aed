// Package catalog 提供函数目录的持久化存储。
// 目录是函数记录的唯一权威来源：调用分发表和调度器
// 都从目录构建自己的视图。
package catalog

import (
	"context"

	"github.com/oriys/conjure/internal/domain"
)

// Store 定义了函数目录存储的接口。
// 所有实现都以函数名作为唯一业务键，名字冲突返回
// domain.ErrFunctionExists，未找到返回 domain.ErrFunctionNotFound。
type Store interface {
	// CreateFunction 持久化一条新的函数记录
	CreateFunction(ctx context.Context, fn *domain.FunctionRecord) error
	// GetFunctionByName 按名字查找函数记录
	GetFunctionByName(ctx context.Context, name string) (*domain.FunctionRecord, error)
	// ListFunctions 返回全部函数记录，按名字升序
	ListFunctions(ctx context.Context) ([]*domain.FunctionRecord, error)
	// UpdateFunction 按 ID 覆盖更新函数记录
	UpdateFunction(ctx context.Context, fn *domain.FunctionRecord) error
	// DeleteFunction 按名字删除函数记录
	DeleteFunction(ctx context.Context, name string) error
	// Close 释放存储连接
	Close() error
}
