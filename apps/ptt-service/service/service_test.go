package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/ptt-service/dao"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

func init() {
	if err := snowflake.InitGlobalSnowflake(31); err != nil {
		panic(err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*rest.ConversationEvent
}

func (p *recordingPublisher) SendMessage(topic string, key, value []byte) error {
	var event rest.ConversationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, &event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) byType(eventType string) []*rest.ConversationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*rest.ConversationEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

func newPTTFixture(t *testing.T) (*Service, *recordingPublisher, *fakeClock) {
	t.Helper()
	log, err := logger.NewLogger("error")
	if err != nil {
		t.Fatalf("创建logger失败: %v", err)
	}
	clock := newFakeClock()
	pub := &recordingPublisher{}
	store := dao.NewMemorySessionStoreWithClock(clock.now)
	svc := NewService(store, pub, log, 500*time.Millisecond, 30*time.Second).WithClock(clock.now)
	return svc, pub, clock
}

func grant(t *testing.T, svc *Service, conv string, userID int64) *rest.PTTResponse {
	t.Helper()
	resp, err := svc.Grant(context.Background(), &rest.PTTRequest{ConversationID: conv, UserID: userID})
	if err != nil {
		t.Fatalf("申请发言权失败: %v", err)
	}
	return resp
}

func release(t *testing.T, svc *Service, conv string, userID int64) *rest.PTTResponse {
	t.Helper()
	resp, err := svc.Release(context.Background(), &rest.PTTRequest{ConversationID: conv, UserID: userID})
	if err != nil {
		t.Fatalf("释放发言权失败: %v", err)
	}
	return resp
}

// 发言权互斥：持有期间他人申请被拒，理由channel busy
func TestGrantExclusive(t *testing.T) {
	svc, pub, _ := newPTTFixture(t)

	if resp := grant(t, svc, "c1", 1); !resp.Granted {
		t.Fatalf("首个申请应成功: %+v", resp)
	}
	if resp := grant(t, svc, "c1", 2); resp.Granted || resp.Reason != ReasonChannelBusy {
		t.Errorf("持有期间他人申请应被拒: %+v", resp)
	}
	if len(pub.byType(rest.EventTypePTTStarted)) != 1 {
		t.Error("应只广播一次ptt_started")
	}
}

// 释放后发言权可以立刻被他人拿到
func TestGrantAfterRelease(t *testing.T) {
	svc, _, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(time.Second)
	release(t, svc, "c1", 1)

	if resp := grant(t, svc, "c1", 2); !resp.Granted {
		t.Errorf("释放后他人申请应成功: %+v", resp)
	}
}

// 发言时长达到最小时长：ptt_ended带时长
func TestReleaseLongUtteranceEnds(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(2 * time.Second)
	release(t, svc, "c1", 1)

	ended := pub.byType(rest.EventTypePTTEnded)
	if len(ended) != 1 {
		t.Fatalf("应广播ptt_ended: %d", len(ended))
	}
	if ended[0].PTT.DurationMs != 2000 {
		t.Errorf("时长错误: %d", ended[0].PTT.DurationMs)
	}
	if len(pub.byType(rest.EventTypePTTCancelled)) != 0 {
		t.Error("不应广播ptt_cancelled")
	}
}

// 短于最小时长的发言按取消处理
func TestReleaseShortUtteranceCancels(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(300 * time.Millisecond)
	release(t, svc, "c1", 1)

	if len(pub.byType(rest.EventTypePTTCancelled)) != 1 {
		t.Error("短发言应广播ptt_cancelled")
	}
	if len(pub.byType(rest.EventTypePTTEnded)) != 0 {
		t.Error("短发言不应广播ptt_ended")
	}
}

// 恰好等于最小时长算正常结束
func TestReleaseAtMinUtteranceEnds(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(500 * time.Millisecond)
	release(t, svc, "c1", 1)

	if len(pub.byType(rest.EventTypePTTEnded)) != 1 {
		t.Error("达到最小时长应广播ptt_ended")
	}
}

// 非持有者的释放是no-op，不影响当前发言
func TestReleaseByNonSpeakerIsNoop(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(time.Second)

	resp := release(t, svc, "c1", 2)
	if resp.Granted || resp.Reason != ReasonNotSpeaker {
		t.Errorf("非持有者释放应被拒: %+v", resp)
	}

	speaker, err := svc.CurrentSpeaker(context.Background(), "c1")
	if err != nil || speaker == nil || speaker.SpeakerID != 1 {
		t.Errorf("当前发言者不应改变: %+v, %v", speaker, err)
	}
	if len(pub.byType(rest.EventTypePTTEnded))+len(pub.byType(rest.EventTypePTTCancelled)) != 0 {
		t.Error("no-op不应广播事件")
	}
}

// 持有者重复申请视为保活，不重复广播
func TestGrantByHolderRefreshes(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(20 * time.Second)
	if resp := grant(t, svc, "c1", 1); !resp.Granted {
		t.Fatalf("持有者续报应成功: %+v", resp)
	}
	if len(pub.byType(rest.EventTypePTTStarted)) != 1 {
		t.Error("续报不应重复广播ptt_started")
	}

	// 续期把TTL往后推
	clock.advance(20 * time.Second)
	if resp := grant(t, svc, "c1", 2); resp.Granted {
		t.Errorf("续期后他人申请仍应被拒: %+v", resp)
	}
}

// 持有者失联后保活TTL到期，发言权自动释放（隐式取消）
func TestLivenessTimeoutReleasesFloor(t *testing.T) {
	svc, _, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(31 * time.Second)

	if resp := grant(t, svc, "c1", 2); !resp.Granted {
		t.Errorf("保活到期后他人申请应成功: %+v", resp)
	}
}

// 不同会话的发言权互不影响
func TestFloorPerConversation(t *testing.T) {
	svc, _, _ := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	if resp := grant(t, svc, "c2", 2); !resp.Granted {
		t.Errorf("其他会话的申请不应受影响: %+v", resp)
	}
}

func TestExplicitCancel(t *testing.T) {
	svc, pub, clock := newPTTFixture(t)

	grant(t, svc, "c1", 1)
	clock.advance(2 * time.Second)
	resp, err := svc.Cancel(context.Background(), &rest.PTTRequest{ConversationID: "c1", UserID: 1})
	if err != nil || !resp.Granted {
		t.Fatalf("持有者取消应成功: %+v, %v", resp, err)
	}

	// 显式取消不看时长
	if len(pub.byType(rest.EventTypePTTCancelled)) != 1 {
		t.Error("显式取消应广播ptt_cancelled")
	}
	if len(pub.byType(rest.EventTypePTTEnded)) != 0 {
		t.Error("显式取消不应广播ptt_ended")
	}
}
