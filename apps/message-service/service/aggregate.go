package service

import (
	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
)

// AggregateStatus 从接收者状态记录计算发送者可见的聚合状态
// 规则对私聊和群聊一致：
//   - 接收者集合为空 → sent
//   - 发送者自己的记录不参与计算
//   - 全部接收者已读 → read
//   - 任一接收者delivered或read → delivered
//   - 其余情况 → sent
//
// 没有记录的接收者按sent计。纯函数，任何输入都有结果。
func AggregateStatus(statuses []*model.MessageStatus, recipients []int64, senderID int64) rest.DeliveryState {
	byRecipient := make(map[int64]rest.DeliveryState, len(statuses))
	for _, st := range statuses {
		byRecipient[st.RecipientID] = rest.DeliveryState(st.Status)
	}

	allRead := true
	anyDelivered := false
	counted := 0
	for _, recipient := range recipients {
		if recipient == senderID {
			continue
		}
		counted++
		status, ok := byRecipient[recipient]
		if !ok {
			status = rest.DeliveryStateSent
		}
		switch status {
		case rest.DeliveryStateRead:
			anyDelivered = true
		case rest.DeliveryStateDelivered:
			anyDelivered = true
			allRead = false
		default:
			allRead = false
		}
	}

	if counted == 0 {
		return rest.DeliveryStateSent
	}
	if allRead {
		return rest.DeliveryStateRead
	}
	if anyDelivered {
		return rest.DeliveryStateDelivered
	}
	return rest.DeliveryStateSent
}

// AggregateWithLocal 叠加发送端本地状态
// 传输层判定永久失败 → failed，压过一切接收者数据
// 服务端尚未确认 → sending
func AggregateWithLocal(local rest.DeliveryState, statuses []*model.MessageStatus, recipients []int64, senderID int64) rest.DeliveryState {
	switch local {
	case rest.DeliveryStateFailed:
		return rest.DeliveryStateFailed
	case rest.DeliveryStateSending:
		return rest.DeliveryStateSending
	}
	return AggregateStatus(statuses, recipients, senderID)
}
