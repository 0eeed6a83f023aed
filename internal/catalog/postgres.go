package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oriys/conjure/internal/domain"
)

// schemaDDL 是函数目录表的建表语句。
// 契约以 JSONB 存储，结构校验在应用层完成。
const schemaDDL = `
CREATE TABLE IF NOT EXISTS functions (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	description     TEXT NOT NULL DEFAULT '',
	source_code     TEXT NOT NULL,
	token           TEXT NOT NULL DEFAULT '',
	contract        JSONB NOT NULL,
	documentation   TEXT NOT NULL DEFAULT '',
	cron_expression TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_functions_name ON functions (name);
`

// uniqueViolation 是 PostgreSQL 唯一约束冲突的错误码
const uniqueViolation = "23505"

// PostgresStore 是基于 PostgreSQL 的函数目录存储
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 连接 PostgreSQL 并确保目录表存在。
// dsn 是标准的 PostgreSQL 连接串。
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: 初始化目录表失败: %v", domain.ErrStorageQuery, err)
	}
	return &PostgresStore{db: db}, nil
}

// CreateFunction 持久化一条新的函数记录
func (s *PostgresStore) CreateFunction(ctx context.Context, fn *domain.FunctionRecord) error {
	contract, err := json.Marshal(fn.Contract)
	if err != nil {
		return fmt.Errorf("序列化契约失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO functions
			(id, name, description, source_code, token, contract, documentation, cron_expression, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fn.ID, fn.Name, fn.Description, fn.SourceCode, fn.Token, contract,
		fn.Documentation, fn.CronExpression, fn.CreatedAt, fn.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrFunctionExists
		}
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// GetFunctionByName 按名字查找函数记录
func (s *PostgresStore) GetFunctionByName(ctx context.Context, name string) (*domain.FunctionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, source_code, token, contract, documentation, cron_expression, created_at, updated_at
		FROM functions WHERE name = $1`, name)
	return scanFunction(row)
}

// ListFunctions 返回全部函数记录，按名字升序
func (s *PostgresStore) ListFunctions(ctx context.Context) ([]*domain.FunctionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, source_code, token, contract, documentation, cron_expression, created_at, updated_at
		FROM functions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	var fns []*domain.FunctionRecord
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return fns, nil
}

// UpdateFunction 按 ID 覆盖更新函数记录。
// 改名撞上已有名字时返回 domain.ErrFunctionExists。
func (s *PostgresStore) UpdateFunction(ctx context.Context, fn *domain.FunctionRecord) error {
	contract, err := json.Marshal(fn.Contract)
	if err != nil {
		return fmt.Errorf("序列化契约失败: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE functions SET
			name = $2, description = $3, source_code = $4, token = $5,
			contract = $6, documentation = $7, cron_expression = $8, updated_at = $9
		WHERE id = $1`,
		fn.ID, fn.Name, fn.Description, fn.SourceCode, fn.Token, contract,
		fn.Documentation, fn.CronExpression, fn.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrFunctionExists
		}
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if affected == 0 {
		return domain.ErrFunctionNotFound
	}
	return nil
}

// DeleteFunction 按名字删除函数记录
func (s *PostgresStore) DeleteFunction(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM functions WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if affected == 0 {
		return domain.ErrFunctionNotFound
	}
	return nil
}

// Close 关闭数据库连接池
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFunction 从查询结果扫描一条函数记录
func scanFunction(row rowScanner) (*domain.FunctionRecord, error) {
	var fn domain.FunctionRecord
	var contract []byte
	err := row.Scan(
		&fn.ID, &fn.Name, &fn.Description, &fn.SourceCode, &fn.Token,
		&contract, &fn.Documentation, &fn.CronExpression, &fn.CreatedAt, &fn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFunctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if err := json.Unmarshal(contract, &fn.Contract); err != nil {
		return nil, fmt.Errorf("反序列化契约失败: %w", err)
	}
	return &fn, nil
}

// 编译期断言：PostgresStore 实现 Store
var _ Store = (*PostgresStore)(nil)
