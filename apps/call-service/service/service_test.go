package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/dao"
	"orgtalk/apps/call-service/model"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

func init() {
	if err := snowflake.InitGlobalSnowflake(30); err != nil {
		panic(err)
	}
}

// recordingPublisher 记录发布的事件，测试用
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*rest.ConversationEvent
}

func (p *recordingPublisher) SendMessage(topic string, key, value []byte) error {
	var event rest.ConversationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, &event)
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

func (p *recordingPublisher) topicOf(eventType string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.events {
		if e.Type == eventType {
			return p.topics[i]
		}
	}
	return ""
}

type callFixture struct {
	svc   *Service
	dao   dao.CallDAO
	pub   *recordingPublisher
	clock *fakeClock
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

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	log, err := logger.NewLogger("error")
	if err != nil {
		t.Fatalf("创建logger失败: %v", err)
	}
	pub := &recordingPublisher{}
	memDAO := dao.NewMemoryCallDAO()
	clock := newFakeClock()
	svc := NewService(memDAO, pub, log, 45*time.Second).WithClock(clock.now)
	return &callFixture{svc: svc, dao: memDAO, pub: pub, clock: clock}
}

func (f *callFixture) initiate(t *testing.T, callType rest.CallType) int64 {
	t.Helper()
	resp, err := f.svc.InitiateCall(context.Background(), &rest.InitiateCallRequest{
		ConversationID: "conv1",
		InitiatorID:    1,
		Type:           callType,
	}, []int64{1, 2})
	if err != nil {
		t.Fatalf("发起通话失败: %v", err)
	}
	return resp.Call.CallID
}

// 振铃45秒无人接听：转missed并向会话写入未接来电系统消息
func TestRingTimeoutProducesMissedCall(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(45 * time.Second)
	reaped, err := f.svc.TimeoutRing(context.Background(), callID)
	if err != nil {
		t.Fatalf("振铃超时处理失败: %v", err)
	}
	if !reaped {
		t.Fatal("超时迁移应成功")
	}

	call, _ := f.dao.GetCall(context.Background(), callID)
	if call.Status != rest.CallStatusMissed {
		t.Errorf("状态应为missed: %s", call.Status)
	}

	// 未接来电系统消息进入会话事件流
	created := f.pub.byType(rest.EventTypeMessageCreated)
	if len(created) != 1 {
		t.Fatalf("应有1条系统消息: %d", len(created))
	}
	msg := created[0].Message
	if msg == nil || msg.Type != rest.MessageTypeMissedVoiceCall {
		t.Errorf("系统消息类型错误: %+v", msg)
	}
	if f.pub.topicOf(rest.EventTypeMessageCreated) != rest.TopicConversationEvents {
		t.Error("系统消息应发布到会话事件topic")
	}
	if f.pub.topicOf(rest.EventTypeCallStatusChanged) != rest.TopicSignalEvents {
		t.Error("通话状态事件应发布到信令topic")
	}
}

func TestVideoCallMissedMessageType(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVideo)

	f.clock.advance(time.Minute)
	if _, err := f.svc.TimeoutRing(context.Background(), callID); err != nil {
		t.Fatal(err)
	}

	created := f.pub.byType(rest.EventTypeMessageCreated)
	if len(created) != 1 || created[0].Message.Type != rest.MessageTypeMissedVideoCall {
		t.Errorf("视频通话未接消息类型错误: %+v", created)
	}
}

// 定时器和清理器并发触发也只产生一条未接消息
func TestRingTimeoutIdempotent(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(time.Minute)
	if _, err := f.svc.TimeoutRing(context.Background(), callID); err != nil {
		t.Fatal(err)
	}
	reaped, err := f.svc.TimeoutRing(context.Background(), callID)
	if err != nil {
		t.Fatal(err)
	}
	if reaped {
		t.Error("重复超时处理不应再次迁移")
	}
	if created := f.pub.byType(rest.EventTypeMessageCreated); len(created) != 1 {
		t.Errorf("未接消息应只有1条: %d", len(created))
	}
}

func TestAnswerThenEnd(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(5 * time.Second)
	resp, err := f.svc.Answer(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2})
	if err != nil {
		t.Fatalf("接听失败: %v", err)
	}
	if resp.Call.Status != rest.CallStatusActive {
		t.Errorf("接听后状态应为active: %s", resp.Call.Status)
	}
	if resp.Call.StartedAt == 0 {
		t.Error("接听后应记录开始时间")
	}

	f.clock.advance(3 * time.Minute)
	resp, err = f.svc.End(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 1})
	if err != nil {
		t.Fatalf("挂断失败: %v", err)
	}
	if resp.Call.Status != rest.CallStatusEnded {
		t.Errorf("挂断后状态应为ended: %s", resp.Call.Status)
	}
	if resp.Call.EndedAt == 0 {
		t.Error("挂断后应记录结束时间")
	}
	if len(f.pub.byType(rest.EventTypeCallEnded)) != 1 {
		t.Error("应发布call_ended事件")
	}
}

func TestDeclineBlocksAnswer(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	if _, err := f.svc.Decline(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2}); err != nil {
		t.Fatalf("拒接失败: %v", err)
	}

	_, err := f.svc.Answer(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("拒接后接听应返回ErrInvalidTransition: %v", err)
	}
}

func TestEndRequiresActive(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	_, err := f.svc.End(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 1})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("振铃中挂断应返回ErrInvalidTransition: %v", err)
	}
}

func TestAnswerAfterTimeout(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	f.clock.advance(time.Minute)
	if _, err := f.svc.TimeoutRing(context.Background(), callID); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Answer(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("超时后接听应返回ErrInvalidTransition: %v", err)
	}
}

func TestActionOnUnknownCall(t *testing.T) {
	f := newCallFixture(t)

	_, err := f.svc.Answer(context.Background(), &rest.CallActionRequest{CallID: 404, UserID: 2})
	if !errors.Is(err, ErrCallNotFound) {
		t.Errorf("未知通话应返回ErrCallNotFound: %v", err)
	}
}

func TestUpdateParticipantOnTerminalCall(t *testing.T) {
	f := newCallFixture(t)
	callID := f.initiate(t, rest.CallTypeVoice)

	if _, err := f.svc.Decline(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2}); err != nil {
		t.Fatal(err)
	}

	muted := true
	err := f.svc.UpdateParticipant(context.Background(), &rest.CallActionRequest{CallID: callID, UserID: 2, Muted: &muted})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("终态通话不应允许更新参与者: %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to rest.CallStatus
		want     bool
	}{
		{rest.CallStatusRinging, rest.CallStatusActive, true},
		{rest.CallStatusRinging, rest.CallStatusMissed, true},
		{rest.CallStatusRinging, rest.CallStatusDeclined, true},
		{rest.CallStatusRinging, rest.CallStatusEnded, false},
		{rest.CallStatusActive, rest.CallStatusEnded, true},
		{rest.CallStatusActive, rest.CallStatusMissed, false},
		{rest.CallStatusEnded, rest.CallStatusActive, false},
		{rest.CallStatusMissed, rest.CallStatusActive, false},
		{rest.CallStatusDeclined, rest.CallStatusRinging, false},
	}
	for _, tc := range cases {
		if got := model.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
