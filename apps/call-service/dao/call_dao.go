package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/model"
	"orgtalk/pkg/database"
)

// callDAO 通话数据访问对象
type callDAO struct {
	db *database.PostgreSQL
}

// NewCallDAO 创建通话DAO实例
func NewCallDAO(db *database.PostgreSQL) CallDAO {
	return &callDAO{db: db}
}

// CreateCall 创建通话记录及参与者，同一事务写入
func (d *callDAO) CreateCall(ctx context.Context, call *model.Call, participants []int64) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(call).Error; err != nil {
			return fmt.Errorf("failed to create call: %v", err)
		}
		for _, userID := range participants {
			participant := &model.CallParticipant{
				CallID: call.ID,
				UserID: userID,
			}
			if err := tx.WithContext(ctx).Create(participant).Error; err != nil {
				return fmt.Errorf("failed to create call participant: %v", err)
			}
		}
		return nil
	})
}

// GetCall 根据ID获取通话，不存在时返回nil
func (d *callDAO) GetCall(ctx context.Context, callID int64) (*model.Call, error) {
	var call model.Call
	db := d.db.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", callID).First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call: %v", err)
	}
	return &call, nil
}

// ListParticipants 获取通话参与者列表
func (d *callDAO) ListParticipants(ctx context.Context, callID int64) ([]*model.CallParticipant, error) {
	var participants []*model.CallParticipant
	db := d.db.GetDB()
	if err := db.WithContext(ctx).Where("call_id = ?", callID).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to list call participants: %v", err)
	}
	return participants, nil
}

// TransitionStatus 带守卫的状态迁移，WHERE带前置状态保证并发下只有一方成功
func (d *callDAO) TransitionStatus(ctx context.Context, callID int64, from, to rest.CallStatus, at time.Time) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, nil
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == rest.CallStatusActive {
		updates["started_at"] = at
	}
	if to.Terminal() {
		updates["ended_at"] = at
	}

	db := d.db.GetDB()
	result := db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND status = ?", callID, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition call status: %v", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkJoined 记录参与者加入时间
func (d *callDAO) MarkJoined(ctx context.Context, callID, userID int64, at time.Time) error {
	db := d.db.GetDB()
	err := db.WithContext(ctx).Model(&model.CallParticipant{}).
		Where("call_id = ? AND user_id = ? AND joined_at IS NULL", callID, userID).
		Update("joined_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark participant joined: %v", err)
	}
	return nil
}

// MarkLeft 记录参与者离开时间
func (d *callDAO) MarkLeft(ctx context.Context, callID, userID int64, at time.Time) error {
	db := d.db.GetDB()
	err := db.WithContext(ctx).Model(&model.CallParticipant{}).
		Where("call_id = ? AND user_id = ? AND left_at IS NULL", callID, userID).
		Update("left_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %v", err)
	}
	return nil
}

// UpdateParticipantFlags 更新参与者静音/视频开关，nil表示不变
func (d *callDAO) UpdateParticipantFlags(ctx context.Context, callID, userID int64, muted, video *bool) error {
	updates := map[string]interface{}{}
	if muted != nil {
		updates["muted"] = *muted
	}
	if video != nil {
		updates["video"] = *video
	}
	if len(updates) == 0 {
		return nil
	}

	db := d.db.GetDB()
	err := db.WithContext(ctx).Model(&model.CallParticipant{}).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update participant flags: %v", err)
	}
	return nil
}

// ListStale 查询需要清理的通话
func (d *callDAO) ListStale(ctx context.Context, ringingBefore, activeBefore time.Time) ([]*model.Call, error) {
	var calls []*model.Call
	db := d.db.GetDB()
	err := db.WithContext(ctx).
		Where("(status = ? AND created_at < ?) OR (status = ? AND created_at < ?)",
			rest.CallStatusRinging, ringingBefore,
			rest.CallStatusActive, activeBefore).
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calls: %v", err)
	}
	return calls, nil
}
