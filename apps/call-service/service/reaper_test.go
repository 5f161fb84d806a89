package service

import (
	"context"
	"testing"
	"time"

	"orgtalk/api/rest"
	"orgtalk/pkg/logger"
)

func newReaperFixture(t *testing.T) (*callFixture, *Reaper) {
	t.Helper()
	f := newCallFixture(t)
	log, err := logger.NewLogger("error")
	if err != nil {
		t.Fatal(err)
	}
	reaper := NewReaper(f.dao, f.svc, nil, log,
		5*time.Minute, time.Hour, time.Minute).WithClock(f.clock.now)
	return f, reaper
}

// 进行中通话只有超过最大存活时间才会被强制结束：
// 第一轮扫描不动，超时后的第二轮扫描才清理
func TestReaperEnforcesMaxLifetime(t *testing.T) {
	f, reaper := newReaperFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)
	if _, err := f.svc.Answer(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2}); err != nil {
		t.Fatal(err)
	}

	f.clock.advance(30 * time.Minute)
	if err := reaper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("第一轮扫描失败: %v", err)
	}
	call, _ := f.dao.GetCall(context.Background(), callID)
	if call.Status != rest.CallStatusActive {
		t.Fatalf("未超时的通话不应被清理: %s", call.Status)
	}

	f.clock.advance(31 * time.Minute)
	if err := reaper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("第二轮扫描失败: %v", err)
	}
	call, _ = f.dao.GetCall(context.Background(), callID)
	if call.Status != rest.CallStatusEnded {
		t.Errorf("超过最大存活时间的通话应被强制结束: %s", call.Status)
	}
	if len(f.pub.byType(rest.EventTypeCallEnded)) != 1 {
		t.Error("强制结束应发布call_ended事件")
	}
}

// 清理器兜底处理定时器丢失的振铃通话
func TestReaperCatchesStaleRinging(t *testing.T) {
	f, reaper := newReaperFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(46 * time.Second)
	if err := reaper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("扫描失败: %v", err)
	}

	call, _ := f.dao.GetCall(context.Background(), callID)
	if call.Status != rest.CallStatusMissed {
		t.Errorf("振铃超时的通话应转missed: %s", call.Status)
	}
	if len(f.pub.byType(rest.EventTypeMessageCreated)) != 1 {
		t.Error("应写入未接来电系统消息")
	}
}

func TestReaperSkipsFreshRinging(t *testing.T) {
	f, reaper := newReaperFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(10 * time.Second)
	if err := reaper.SweepOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	call, _ := f.dao.GetCall(context.Background(), callID)
	if call.Status != rest.CallStatusRinging {
		t.Errorf("振铃窗口内的通话不应被清理: %s", call.Status)
	}
}

// ctx取消后Run立即退出，不等待下一个扫描周期
func TestReaperRunStopsOnCancel(t *testing.T) {
	f, _ := newReaperFixture(t)
	log, err := logger.NewLogger("error")
	if err != nil {
		t.Fatal(err)
	}
	reaper := NewReaper(f.dao, f.svc, nil, log, time.Hour, time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("取消后Run未及时退出")
	}
}
