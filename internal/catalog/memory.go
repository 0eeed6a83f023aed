package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/oriys/conjure/internal/domain"
)

// MemoryStore 是内存版的函数目录存储。
// 用于本地开发和测试，语义与 PostgresStore 一致。
type MemoryStore struct {
	mu  sync.RWMutex
	fns map[string]*domain.FunctionRecord
}

// NewMemoryStore 创建内存目录存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fns: make(map[string]*domain.FunctionRecord)}
}

// CreateFunction 持久化一条新的函数记录
func (s *MemoryStore) CreateFunction(ctx context.Context, fn *domain.FunctionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fns[fn.Name]; ok {
		return domain.ErrFunctionExists
	}
	cp := *fn
	s.fns[fn.Name] = &cp
	return nil
}

// GetFunctionByName 按名字查找函数记录
func (s *MemoryStore) GetFunctionByName(ctx context.Context, name string) (*domain.FunctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.fns[name]
	if !ok {
		return nil, domain.ErrFunctionNotFound
	}
	cp := *fn
	return &cp, nil
}

// ListFunctions 返回全部函数记录，按名字升序
func (s *MemoryStore) ListFunctions(ctx context.Context) ([]*domain.FunctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fns := make([]*domain.FunctionRecord, 0, len(s.fns))
	for _, fn := range s.fns {
		cp := *fn
		fns = append(fns, &cp)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	return fns, nil
}

// UpdateFunction 按 ID 覆盖更新函数记录
func (s *MemoryStore) UpdateFunction(ctx context.Context, fn *domain.FunctionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldName string
	found := false
	for name, existing := range s.fns {
		if existing.ID == fn.ID {
			oldName = name
			found = true
			break
		}
	}
	if !found {
		return domain.ErrFunctionNotFound
	}
	// 改名撞上其他函数的名字视为冲突
	if fn.Name != oldName {
		if _, taken := s.fns[fn.Name]; taken {
			return domain.ErrFunctionExists
		}
		delete(s.fns, oldName)
	}
	cp := *fn
	s.fns[fn.Name] = &cp
	return nil
}

// DeleteFunction 按名字删除函数记录
func (s *MemoryStore) DeleteFunction(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fns[name]; !ok {
		return domain.ErrFunctionNotFound
	}
	delete(s.fns, name)
	return nil
}

// Close 实现 Store 接口，内存存储无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}

// 编译期断言：MemoryStore 实现 Store
var _ Store = (*MemoryStore)(nil)
