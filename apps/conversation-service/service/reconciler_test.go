package service

import (
	"reflect"
	"testing"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/conversation-service/model"
)

const viewer = int64(1)

func conv(id string, unread int, lastAt int64) *model.Conversation {
	return &model.Conversation{
		ConversationID: id,
		UserID:         viewer,
		Type:           string(rest.ConversationTypePrivate),
		UnreadCount:    unread,
		LastMessageAt:  lastAt,
	}
}

func messageEvent(convID string, seq, senderID, ts int64) *rest.ConversationEvent {
	return &rest.ConversationEvent{
		Type:           rest.EventTypeMessageCreated,
		ConversationID: convID,
		Seq:            seq,
		Timestamp:      ts,
		Message: &rest.WireMessage{
			MessageID:      seq,
			ConversationID: convID,
			SenderID:       senderID,
			Type:           rest.MessageTypeText,
			Content:        "hello",
			Timestamp:      ts,
		},
	}
}

// 本地未读数更高且最后消息更新时，陈旧快照不得回退任何一项
func TestMergeStaleSnapshotDoesNotRegress(t *testing.T) {
	local := conv("c1", 3, 2000) // T2
	server := conv("c1", 1, 1000) // T1 < T2

	merged := MergeEntry(local, server)
	if merged.UnreadCount != 3 {
		t.Errorf("未读数被陈旧快照回退: got %d, want 3", merged.UnreadCount)
	}
	if merged.LastMessageAt != 2000 {
		t.Errorf("最后消息时间被陈旧快照回退: got %d, want 2000", merged.LastMessageAt)
	}
}

// 本地已应用归档事件后，进度落后的快照不得翻回归档/免打扰标记
func TestMergeStaleSnapshotKeepsFlags(t *testing.T) {
	local := conv("c1", 0, 2000)
	local.Archived = true
	local.Muted = true
	local.AppliedSeq = 10 // 归档事件已应用

	server := conv("c1", 0, 2000) // 归档前生成的快照
	server.AppliedSeq = 5

	merged := MergeEntry(local, server)
	if !merged.Archived {
		t.Errorf("陈旧快照回退了归档标记: merged.Archived=%v", merged.Archived)
	}
	if !merged.Muted {
		t.Errorf("陈旧快照回退了免打扰标记: merged.Muted=%v", merged.Muted)
	}

	// 进度不落后的快照正常覆盖
	fresh := conv("c1", 0, 2000)
	fresh.AppliedSeq = 12
	merged = MergeEntry(local, fresh)
	if merged.Archived {
		t.Errorf("新快照的取消归档应生效: merged.Archived=%v", merged.Archived)
	}
	if merged.AppliedSeq != 12 {
		t.Errorf("AppliedSeq应取高位: got %d", merged.AppliedSeq)
	}
}

// 快照侧更新时取快照值
func TestMergeFresherSnapshotWins(t *testing.T) {
	local := conv("c1", 1, 1000)
	server := conv("c1", 4, 3000)
	server.LastMessage = &rest.WireMessage{MessageID: 9, Timestamp: 3000}

	merged := MergeEntry(local, server)
	if merged.UnreadCount != 4 {
		t.Errorf("未读数应取max: got %d", merged.UnreadCount)
	}
	if merged.LastMessageAt != 3000 || merged.LastMessage == nil || merged.LastMessage.MessageID != 9 {
		t.Errorf("最后消息应为快照侧的新消息")
	}
}

// 显式已读后，ReadSeq落后的快照不得再抬高未读数
func TestMergeReadSeqOverride(t *testing.T) {
	local := conv("c1", 0, 2000)
	local.ReadSeq = 500 // 本地刚标记已读

	server := conv("c1", 7, 2000) // 标记已读前的陈旧快照
	server.ReadSeq = 100

	merged := MergeEntry(local, server)
	if merged.UnreadCount != 0 {
		t.Errorf("陈旧快照把已读会话的未读数抬回去了: got %d", merged.UnreadCount)
	}
	if merged.ReadSeq != 500 {
		t.Errorf("ReadSeq应保留高位: got %d", merged.ReadSeq)
	}
}

// 只在单侧存在的会话保留不丢
func TestReconcilePreservesOneSidedEntries(t *testing.T) {
	local := []*model.Conversation{conv("local-only", 1, 100)}
	server := []*model.Conversation{conv("server-only", 2, 200)}

	merged := Reconcile(server, local, nil, viewer)
	if len(merged) != 2 {
		t.Fatalf("期望2个会话, 实际%d", len(merged))
	}
	ids := map[string]bool{}
	for _, c := range merged {
		ids[c.ConversationID] = true
	}
	if !ids["local-only"] || !ids["server-only"] {
		t.Errorf("单侧会话被丢弃: %v", ids)
	}
}

// reconcile(reconcile(S,L,D), L, D) == reconcile(S,L,D)
func TestReconcileIdempotent(t *testing.T) {
	local := []*model.Conversation{conv("c1", 2, 1000)}
	server := []*model.Conversation{conv("c1", 1, 900)}
	delta := []*rest.ConversationEvent{
		messageEvent("c1", 10, 2, 1500),
		messageEvent("c1", 11, 2, 1600),
	}

	once := Reconcile(server, local, delta, viewer)
	twice := Reconcile(server, once, delta, viewer)

	if len(once) != len(twice) {
		t.Fatalf("两轮合并长度不一致: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		a, b := once[i], twice[i]
		a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{} // 落盘时间不参与比较
		if !reflect.DeepEqual(a, b) {
			t.Errorf("重复合并改变了状态: %+v vs %+v", a, b)
		}
	}
}

// 同一事件重复应用不得再次累加未读数
func TestApplyEventReplayIsNoop(t *testing.T) {
	c := conv("c1", 0, 0)
	event := messageEvent("c1", 10, 2, 1500)

	if !ApplyEvent(c, event, viewer) {
		t.Fatal("首次应用应有变化")
	}
	if c.UnreadCount != 1 {
		t.Fatalf("首次应用后未读应为1, got %d", c.UnreadCount)
	}
	if ApplyEvent(c, event, viewer) {
		t.Error("重放同一事件不应有变化")
	}
	if c.UnreadCount != 1 {
		t.Errorf("重放把未读数累加了: got %d", c.UnreadCount)
	}
}

// 没有显式已读时，反复快照合并未读数单调不减
func TestUnreadNonDecreasingAcrossMerges(t *testing.T) {
	current := conv("c1", 0, 0)
	snapshots := []int{1, 3, 2, 3, 0, 3} // 含乱序与陈旧值

	prev := 0
	for i, unread := range snapshots {
		server := conv("c1", unread, int64(i*100))
		current = MergeEntry(current, server)
		if current.UnreadCount < prev {
			t.Fatalf("第%d轮合并未读数回退: %d < %d", i, current.UnreadCount, prev)
		}
		prev = current.UnreadCount
	}
}

// 自己发的消息不计未读
func TestOwnMessageDoesNotIncrementUnread(t *testing.T) {
	c := conv("c1", 0, 0)
	ApplyEvent(c, messageEvent("c1", 10, viewer, 1500), viewer)
	if c.UnreadCount != 0 {
		t.Errorf("自己的消息不应计未读: got %d", c.UnreadCount)
	}
	if c.LastMessageAt != 1500 {
		t.Errorf("最后消息仍应更新: got %d", c.LastMessageAt)
	}
}

// 显式已读重置未读数，且逆向标记被丢弃
func TestMarkReadResetAndMonotonic(t *testing.T) {
	c := conv("c1", 5, 1000)

	readEvent := &rest.ConversationEvent{
		Type:           rest.EventTypeConversationRead,
		ConversationID: "c1",
		Seq:            20,
		Read:           &rest.ReadMarker{UserID: viewer, ReadSeq: 15},
	}
	if !ApplyEvent(c, readEvent, viewer) {
		t.Fatal("已读标记应生效")
	}
	if c.UnreadCount != 0 || c.ReadSeq != 15 {
		t.Fatalf("已读重置失败: unread=%d readSeq=%d", c.UnreadCount, c.ReadSeq)
	}

	// 更早的已读标记不得回退
	stale := &rest.ConversationEvent{
		Type:           rest.EventTypeConversationRead,
		ConversationID: "c1",
		Seq:            21,
		Read:           &rest.ReadMarker{UserID: viewer, ReadSeq: 3},
	}
	ApplyEvent(c, stale, viewer)
	if c.ReadSeq != 15 {
		t.Errorf("陈旧已读标记回退了ReadSeq: got %d", c.ReadSeq)
	}
}

// 已读标记之前的消息事件重放不再计未读
func TestReadSeqGuardsReplayedMessages(t *testing.T) {
	c := conv("c1", 0, 0)
	c.ReadSeq = 100
	c.AppliedSeq = 0

	ApplyEvent(c, messageEvent("c1", 50, 2, 500), viewer) // seq 50 < readSeq 100
	if c.UnreadCount != 0 {
		t.Errorf("已读线之前的消息不应计未读: got %d", c.UnreadCount)
	}
}

// 未知事件类型与缺字段事件降级为no-op
func TestUnknownAndMalformedEventsAreNoop(t *testing.T) {
	c := conv("c1", 2, 1000)
	before := *c

	ApplyEvent(c, &rest.ConversationEvent{Type: "some_future_event", ConversationID: "c1", Seq: 99}, viewer)
	ApplyEvent(c, &rest.ConversationEvent{Type: rest.EventTypeMessageCreated, ConversationID: "c1", Seq: 100}, viewer) // Message缺失
	ApplyEvent(c, nil, viewer)

	if c.UnreadCount != before.UnreadCount || c.LastMessageAt != before.LastMessageAt {
		t.Errorf("坏事件污染了合并状态: %+v", c)
	}
}

// 默认视图过滤归档与已删除，归档视图保留
func TestDefaultViewFiltersArchived(t *testing.T) {
	archived := conv("c2", 0, 100)
	archived.Archived = true
	deleted := conv("c3", 0, 100)
	deleted.Deleted = true

	all := []*model.Conversation{conv("c1", 0, 100), archived, deleted}
	visible := DefaultView(all)
	if len(visible) != 1 || visible[0].ConversationID != "c1" {
		t.Errorf("默认视图过滤错误: %+v", visible)
	}
	// 合并存储中仍然保留
	if len(all) != 3 {
		t.Errorf("归档会话不应从合并存储中移除")
	}
}

// 结果按最后消息时间倒序
func TestReconcileSortsByLastMessageAt(t *testing.T) {
	local := []*model.Conversation{conv("old", 0, 100), conv("new", 0, 300), conv("mid", 0, 200)}
	merged := Reconcile(nil, local, nil, viewer)

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if merged[i].ConversationID != id {
			t.Fatalf("排序错误: 位置%d是%s, 期望%s", i, merged[i].ConversationID, id)
		}
	}
}
