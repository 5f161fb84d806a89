package dao

import (
	"context"
	"sync"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/model"
)

// memoryCallDAO 内存实现，测试用
type memoryCallDAO struct {
	mu           sync.Mutex
	calls        map[int64]*model.Call
	participants map[int64][]*model.CallParticipant
}

// NewMemoryCallDAO 创建内存DAO实例
func NewMemoryCallDAO() CallDAO {
	return &memoryCallDAO{
		calls:        make(map[int64]*model.Call),
		participants: make(map[int64][]*model.CallParticipant),
	}
}

func (d *memoryCallDAO) CreateCall(ctx context.Context, call *model.Call, participants []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *call
	d.calls[call.ID] = &stored
	for _, userID := range participants {
		d.participants[call.ID] = append(d.participants[call.ID], &model.CallParticipant{
			CallID: call.ID,
			UserID: userID,
		})
	}
	return nil
}

func (d *memoryCallDAO) GetCall(ctx context.Context, callID int64) (*model.Call, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	call, ok := d.calls[callID]
	if !ok {
		return nil, nil
	}
	clone := *call
	return &clone, nil
}

func (d *memoryCallDAO) ListParticipants(ctx context.Context, callID int64) ([]*model.CallParticipant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*model.CallParticipant, 0, len(d.participants[callID]))
	for _, p := range d.participants[callID] {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (d *memoryCallDAO) TransitionStatus(ctx context.Context, callID int64, from, to rest.CallStatus, at time.Time) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	call, ok := d.calls[callID]
	if !ok || call.Status != from {
		return false, nil
	}
	call.Status = to
	call.UpdatedAt = at
	if to == rest.CallStatusActive {
		t := at
		call.StartedAt = &t
	}
	if to.Terminal() {
		t := at
		call.EndedAt = &t
	}
	return true, nil
}

func (d *memoryCallDAO) MarkJoined(ctx context.Context, callID, userID int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.participants[callID] {
		if p.UserID == userID && p.JoinedAt == nil {
			t := at
			p.JoinedAt = &t
		}
	}
	return nil
}

func (d *memoryCallDAO) MarkLeft(ctx context.Context, callID, userID int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.participants[callID] {
		if p.UserID == userID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
		}
	}
	return nil
}

func (d *memoryCallDAO) UpdateParticipantFlags(ctx context.Context, callID, userID int64, muted, video *bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.participants[callID] {
		if p.UserID == userID {
			if muted != nil {
				p.Muted = *muted
			}
			if video != nil {
				p.Video = *video
			}
		}
	}
	return nil
}

func (d *memoryCallDAO) ListStale(ctx context.Context, ringingBefore, activeBefore time.Time) ([]*model.Call, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*model.Call
	for _, call := range d.calls {
		stale := (call.Status == rest.CallStatusRinging && call.CreatedAt.Before(ringingBefore)) ||
			(call.Status == rest.CallStatusActive && call.CreatedAt.Before(activeBefore))
		if stale {
			clone := *call
			out = append(out, &clone)
		}
	}
	return out, nil
}
