package dao

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"orgtalk/apps/api-gateway-service/model"
)

// memoryDirectoryDAO 内存实现，测试用
type memoryDirectoryDAO struct {
	mu      sync.Mutex
	entries map[string]*model.DirectoryEntry
	nextID  int64
}

// NewMemoryDirectoryDAO 创建内存DAO实例
func NewMemoryDirectoryDAO() DirectoryDAO {
	return &memoryDirectoryDAO{
		entries: make(map[string]*model.DirectoryEntry),
		nextID:  1,
	}
}

func (d *memoryDirectoryDAO) Upsert(ctx context.Context, entry *model.DirectoryEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if existing, ok := d.entries[entry.ServiceNumber]; ok {
		existing.Name = entry.Name
		existing.Rank = entry.Rank
		existing.Unit = entry.Unit
		existing.Phone = entry.Phone
		existing.UpdatedAt = now
		entry.ID = existing.ID
		return nil
	}

	clone := *entry
	clone.ID = d.nextID
	d.nextID++
	clone.CreatedAt = now
	clone.UpdatedAt = now
	d.entries[entry.ServiceNumber] = &clone
	entry.ID = clone.ID
	return nil
}

func (d *memoryDirectoryDAO) GetByServiceNumber(ctx context.Context, serviceNumber string) (*model.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[serviceNumber]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (d *memoryDirectoryDAO) Search(ctx context.Context, keyword string, page, size int) ([]*model.DirectoryEntry, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	var matched []*model.DirectoryEntry
	for _, entry := range d.entries {
		if keyword == "" ||
			strings.Contains(entry.Name, keyword) ||
			strings.Contains(entry.Unit, keyword) ||
			strings.Contains(entry.ServiceNumber, keyword) {
			clone := *entry
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ServiceNumber < matched[j].ServiceNumber
	})

	total := int64(len(matched))
	start := (page - 1) * size
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}
