package service

import (
	"testing"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
)

func statusRecord(messageID, recipientID int64, status rest.DeliveryState) *model.MessageStatus {
	return &model.MessageStatus{
		MessageID:   messageID,
		RecipientID: recipientID,
		Status:      string(status),
	}
}

func TestAggregateStatus(t *testing.T) {
	const sender = int64(1)

	tests := []struct {
		name       string
		statuses   []*model.MessageStatus
		recipients []int64
		want       rest.DeliveryState
	}{
		{
			name:       "空接收者集合返回sent",
			statuses:   nil,
			recipients: nil,
			want:       rest.DeliveryStateSent,
		},
		{
			name: "群消息部分已读部分已投递返回delivered",
			statuses: []*model.MessageStatus{
				statusRecord(100, 2, rest.DeliveryStateRead),      // Bob
				statusRecord(100, 3, rest.DeliveryStateDelivered), // Carol
			},
			recipients: []int64{2, 3},
			want:       rest.DeliveryStateDelivered,
		},
		{
			name: "全部接收者已读返回read",
			statuses: []*model.MessageStatus{
				statusRecord(100, 2, rest.DeliveryStateRead),
				statusRecord(100, 3, rest.DeliveryStateRead),
			},
			recipients: []int64{2, 3},
			want:       rest.DeliveryStateRead,
		},
		{
			name:       "无任何状态记录返回sent",
			statuses:   nil,
			recipients: []int64{2, 3},
			want:       rest.DeliveryStateSent,
		},
		{
			name: "缺记录的接收者按sent计",
			statuses: []*model.MessageStatus{
				statusRecord(100, 2, rest.DeliveryStateRead),
			},
			recipients: []int64{2, 3},
			want:       rest.DeliveryStateDelivered,
		},
		{
			name: "发送者自己的记录不参与计算",
			statuses: []*model.MessageStatus{
				statusRecord(100, sender, rest.DeliveryStateRead),
				statusRecord(100, 2, rest.DeliveryStateRead),
			},
			recipients: []int64{sender, 2},
			want:       rest.DeliveryStateRead,
		},
		{
			name: "私聊单接收者已读返回read",
			statuses: []*model.MessageStatus{
				statusRecord(100, 2, rest.DeliveryStateRead),
			},
			recipients: []int64{2},
			want:       rest.DeliveryStateRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateStatus(tt.statuses, tt.recipients, sender)
			if got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateWithLocal(t *testing.T) {
	statuses := []*model.MessageStatus{
		statusRecord(100, 2, rest.DeliveryStateRead),
	}

	// failed压过一切接收者数据
	if got := AggregateWithLocal(rest.DeliveryStateFailed, statuses, []int64{2}, 1); got != rest.DeliveryStateFailed {
		t.Errorf("failed应覆盖接收者状态, got %s", got)
	}
	// 服务端未确认时保持sending
	if got := AggregateWithLocal(rest.DeliveryStateSending, statuses, []int64{2}, 1); got != rest.DeliveryStateSending {
		t.Errorf("sending应覆盖接收者状态, got %s", got)
	}
	// 已确认则走聚合
	if got := AggregateWithLocal(rest.DeliveryStateSent, statuses, []int64{2}, 1); got != rest.DeliveryStateRead {
		t.Errorf("sent本地状态下应返回聚合结果, got %s", got)
	}
}

// 接收者状态只前进时，聚合结果序列也必须非递减
func TestAggregateMonotonic(t *testing.T) {
	recipients := []int64{2, 3}
	steps := [][]*model.MessageStatus{
		nil,
		{statusRecord(100, 2, rest.DeliveryStateDelivered)},
		{statusRecord(100, 2, rest.DeliveryStateDelivered), statusRecord(100, 3, rest.DeliveryStateDelivered)},
		{statusRecord(100, 2, rest.DeliveryStateRead), statusRecord(100, 3, rest.DeliveryStateDelivered)},
		{statusRecord(100, 2, rest.DeliveryStateRead), statusRecord(100, 3, rest.DeliveryStateRead)},
	}

	prev := -1
	for i, statuses := range steps {
		got := AggregateStatus(statuses, recipients, 1)
		if got.Rank() < prev {
			t.Fatalf("步骤%d聚合状态回退: %s (rank %d < %d)", i, got, got.Rank(), prev)
		}
		prev = got.Rank()
	}
	if prev != rest.DeliveryStateRead.Rank() {
		t.Fatalf("最终聚合状态应为read")
	}
}
