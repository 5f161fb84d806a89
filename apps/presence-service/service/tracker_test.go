package service

import (
	"testing"
	"time"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker(clock *fakeClock) *Tracker {
	return NewTracker(3 * time.Second).WithClock(clock.now)
}

// 没收到停止信号，窗口过期后输入状态也要消失
func TestTypingExpiresWithoutStop(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.TypingStart("c1", 2)
	if users := tracker.TypingUsers("c1"); len(users) != 1 || users[0] != 2 {
		t.Fatalf("开始后应在输入中: %v", users)
	}

	clock.advance(3100 * time.Millisecond)
	if users := tracker.TypingUsers("c1"); len(users) != 0 {
		t.Errorf("窗口过期后输入状态未消失: %v", users)
	}
}

// 2秒一次的续报把窗口不断往后推
func TestTypingRefreshExtendsWindow(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.TypingStart("c1", 2)
	for i := 0; i < 3; i++ {
		clock.advance(2 * time.Second)
		tracker.TypingStart("c1", 2) // 续报
	}

	// 距最后一次续报2秒，仍在3秒窗口内
	clock.advance(2 * time.Second)
	if users := tracker.TypingUsers("c1"); len(users) != 1 {
		t.Errorf("续报后窗口内状态丢失: %v", users)
	}

	clock.advance(2 * time.Second)
	if users := tracker.TypingUsers("c1"); len(users) != 0 {
		t.Errorf("停止续报后状态未过期: %v", users)
	}
}

func TestTypingStopImmediate(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.TypingStart("c1", 2)
	tracker.TypingStop("c1", 2)
	if users := tracker.TypingUsers("c1"); len(users) != 0 {
		t.Errorf("显式停止后状态未消失: %v", users)
	}
}

func TestTypingIsolatedPerConversation(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.TypingStart("c1", 2)
	tracker.TypingStart("c2", 3)

	if users := tracker.TypingUsers("c1"); len(users) != 1 || users[0] != 2 {
		t.Errorf("c1输入用户错误: %v", users)
	}
	if users := tracker.TypingUsers("c2"); len(users) != 1 || users[0] != 3 {
		t.Errorf("c2输入用户错误: %v", users)
	}
}

func TestSweepCollectsExpired(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.TypingStart("c1", 2)
	clock.advance(2 * time.Second)
	tracker.TypingStart("c1", 3) // 晚2秒开始

	clock.advance(2 * time.Second) // 用户2已过期，用户3还有1秒
	expired := tracker.Sweep()
	if len(expired) != 1 || expired[0].UserID != 2 {
		t.Fatalf("Sweep应只清理过期条目: %v", expired)
	}
	if users := tracker.TypingUsers("c1"); len(users) != 1 || users[0] != 3 {
		t.Errorf("未过期条目被误清: %v", users)
	}
}

// lastSeen只许前进，迟到的陈旧事件被丢弃
func TestPresenceLastSeenMonotonic(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	if !tracker.UpdatePresence(2, true, 1000) {
		t.Fatal("首次更新应成功")
	}
	if !tracker.UpdatePresence(2, false, 2000) {
		t.Fatal("新事件应成功")
	}
	// 乱序到达的旧事件
	if tracker.UpdatePresence(2, true, 1500) {
		t.Error("陈旧事件不应被接受")
	}

	online, lastSeen, ok := tracker.GetPresence(2)
	if !ok || online || lastSeen != 2000 {
		t.Errorf("状态被陈旧事件覆盖: online=%v lastSeen=%d", online, lastSeen)
	}
}

// 相同时间戳按last-writer-wins处理
func TestPresenceEqualTimestampLastWriterWins(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.UpdatePresence(2, true, 1000)
	if !tracker.UpdatePresence(2, false, 1000) {
		t.Fatal("同时间戳的后写应生效")
	}
	online, _, _ := tracker.GetPresence(2)
	if online {
		t.Error("后写未生效")
	}
}

func TestPresenceUnknownUser(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	if _, _, ok := tracker.GetPresence(42); ok {
		t.Error("未知用户不应有状态")
	}
}
