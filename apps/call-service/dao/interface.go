package dao

import (
	"context"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/model"
)

// CallDAO 通话数据访问接口
type CallDAO interface {
	// 通话管理
	CreateCall(ctx context.Context, call *model.Call, participants []int64) error
	GetCall(ctx context.Context, callID int64) (*model.Call, error)
	ListParticipants(ctx context.Context, callID int64) ([]*model.CallParticipant, error)

	// 状态迁移，带前置状态守卫，迁移成功返回true
	TransitionStatus(ctx context.Context, callID int64, from, to rest.CallStatus, at time.Time) (bool, error)

	// 参与者状态
	MarkJoined(ctx context.Context, callID, userID int64, at time.Time) error
	MarkLeft(ctx context.Context, callID, userID int64, at time.Time) error
	UpdateParticipantFlags(ctx context.Context, callID, userID int64, muted, video *bool) error

	// 清理器查询：振铃超时的通话 + 超过最大存活时间的进行中通话
	ListStale(ctx context.Context, ringingBefore, activeBefore time.Time) ([]*model.Call, error)
}
