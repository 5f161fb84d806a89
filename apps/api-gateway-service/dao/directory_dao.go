package dao

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgtalk/apps/api-gateway-service/model"
	"orgtalk/pkg/database"
)

// directoryDAO 通讯录数据访问对象
type directoryDAO struct {
	db *database.PostgreSQL
}

// NewDirectoryDAO 创建通讯录DAO实例
func NewDirectoryDAO(db *database.PostgreSQL) DirectoryDAO {
	return &directoryDAO{db: db}
}

// Upsert 按服务号冲突时更新，重复导入覆盖旧信息
func (d *directoryDAO) Upsert(ctx context.Context, entry *model.DirectoryEntry) error {
	db := d.db.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "rank", "unit", "phone", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to upsert directory entry: %v", err)
	}
	return nil
}

func (d *directoryDAO) GetByServiceNumber(ctx context.Context, serviceNumber string) (*model.DirectoryEntry, error) {
	var entry model.DirectoryEntry
	db := d.db.GetDB()
	if err := db.WithContext(ctx).Where("service_number = ?", serviceNumber).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get directory entry: %v", err)
	}
	return &entry, nil
}

func (d *directoryDAO) Search(ctx context.Context, keyword string, page, size int) ([]*model.DirectoryEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	db := d.db.GetDB().WithContext(ctx).Model(&model.DirectoryEntry{})
	if keyword != "" {
		pattern := "%" + keyword + "%"
		db = db.Where("name LIKE ? OR unit LIKE ? OR service_number LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count directory entries: %v", err)
	}

	var entries []*model.DirectoryEntry
	err := db.Order("service_number").
		Offset((page - 1) * size).
		Limit(size).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search directory entries: %v", err)
	}
	return entries, total, nil
}
