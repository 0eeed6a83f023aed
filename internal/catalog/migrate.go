package catalog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/auth"
)

// Migrate 在服务启动时为缺少调用令牌的函数记录补发令牌。
// 早期注册的函数记录可能没有令牌字段；补发是显式的启动步骤，
// 不藏在读取路径里，执行一次后所有记录都持有令牌。
// 返回补发的记录条数。
func Migrate(ctx context.Context, store Store, log *logrus.Logger) (int, error) {
	fns, err := store.ListFunctions(ctx)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, fn := range fns {
		if fn.Token != "" {
			continue
		}
		fn.Token = auth.IssueToken()
		fn.UpdatedAt = time.Now().UTC()
		if err := store.UpdateFunction(ctx, fn); err != nil {
			return migrated, err
		}
		log.WithFields(logrus.Fields{
			"function": fn.Name,
			"id":       fn.ID,
		}).Info("已为存量函数补发调用令牌")
		migrated++
	}
	if migrated > 0 {
		log.WithField("count", migrated).Info("目录令牌迁移完成")
	}
	return migrated, nil
}
