package model

import (
	"time"
)

// DirectoryEntry 通讯录条目，身份以编制内服务号为准
type DirectoryEntry struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ServiceNumber string    `gorm:"size:32;not null;uniqueIndex" json:"service_number"`
	Name          string    `gorm:"size:64;not null" json:"name"`
	Rank          string    `gorm:"size:32" json:"rank"`
	Unit          string    `gorm:"size:64;index" json:"unit"`
	Phone         string    `gorm:"size:32" json:"phone"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
