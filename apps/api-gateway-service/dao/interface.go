package dao

import (
	"context"

	"orgtalk/apps/api-gateway-service/model"
)

// DirectoryDAO 通讯录数据访问接口
type DirectoryDAO interface {
	// Upsert 按服务号新增或更新条目
	Upsert(ctx context.Context, entry *model.DirectoryEntry) error

	// GetByServiceNumber 按服务号查询，不存在返回nil
	GetByServiceNumber(ctx context.Context, serviceNumber string) (*model.DirectoryEntry, error)

	// Search 按姓名/单位模糊查询
	Search(ctx context.Context, keyword string, page, size int) ([]*model.DirectoryEntry, int64, error)
}
