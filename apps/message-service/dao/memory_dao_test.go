package dao

import (
	"context"
	"testing"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
)

func TestAdvanceStatusMonotonic(t *testing.T) {
	d := NewMemoryDAO()
	ctx := context.Background()

	// sent → delivered → read 正常前进
	if err := d.AdvanceStatus(ctx, 100, 2, rest.DeliveryStateDelivered, 1000); err != nil {
		t.Fatalf("AdvanceStatus delivered: %v", err)
	}
	if err := d.AdvanceStatus(ctx, 100, 2, rest.DeliveryStateRead, 2000); err != nil {
		t.Fatalf("AdvanceStatus read: %v", err)
	}

	// 逆向上报必须被吞掉
	if err := d.AdvanceStatus(ctx, 100, 2, rest.DeliveryStateDelivered, 3000); err != nil {
		t.Fatalf("逆向上报不应报错: %v", err)
	}

	statuses, err := d.ListStatuses(ctx, 100)
	if err != nil {
		t.Fatalf("ListStatuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("期望1条状态记录, 实际%d条", len(statuses))
	}
	st := statuses[0]
	if st.Status != string(rest.DeliveryStateRead) {
		t.Errorf("状态被逆向上报回退: %s", st.Status)
	}
	if st.DeliveredAt != 1000 {
		t.Errorf("delivered_at应只写入一次, got %d", st.DeliveredAt)
	}
	if st.ReadAt != 2000 {
		t.Errorf("read_at应只写入一次, got %d", st.ReadAt)
	}
}

func TestAdvanceStatusIdempotent(t *testing.T) {
	d := NewMemoryDAO()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := d.AdvanceStatus(ctx, 100, 2, rest.DeliveryStateRead, int64(1000+i)); err != nil {
			t.Fatalf("重复上报第%d次: %v", i, err)
		}
	}

	statuses, _ := d.ListStatuses(ctx, 100)
	if len(statuses) != 1 {
		t.Fatalf("期望1条状态记录, 实际%d条", len(statuses))
	}
	if statuses[0].ReadAt != 1000 {
		t.Errorf("read_at应保留首次写入值1000, got %d", statuses[0].ReadAt)
	}
}

func TestSaveMessageIdempotent(t *testing.T) {
	d := NewMemoryDAO()
	ctx := context.Background()

	msg := &model.Message{
		MessageID:      100,
		ConversationID: "c1",
		SenderID:       1,
		Type:           string(rest.MessageTypeText),
		Content:        "first",
		Timestamp:      1000,
	}
	if err := d.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	// at-least-once重放同一消息不覆盖
	dup := *msg
	dup.Content = "replayed"
	if err := d.SaveMessage(ctx, &dup); err != nil {
		t.Fatalf("重放SaveMessage: %v", err)
	}

	got, err := d.GetMessage(ctx, 100)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Content != "first" {
		t.Errorf("重放覆盖了原消息: %s", got.Content)
	}
}

func TestCanAdvance(t *testing.T) {
	if !model.CanAdvance(rest.DeliveryStateSent, rest.DeliveryStateDelivered) {
		t.Error("sent→delivered应允许")
	}
	if !model.CanAdvance(rest.DeliveryStateSent, rest.DeliveryStateRead) {
		t.Error("sent→read应允许")
	}
	if model.CanAdvance(rest.DeliveryStateRead, rest.DeliveryStateDelivered) {
		t.Error("read→delivered不应允许")
	}
	if model.CanAdvance(rest.DeliveryStateRead, rest.DeliveryStateRead) {
		t.Error("同状态重复写不算前进")
	}
	if model.CanAdvance(rest.DeliveryStateFailed, rest.DeliveryStateRead) {
		t.Error("failed不在接收者状态序里")
	}
}
