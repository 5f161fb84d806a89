package service

import (
	"sort"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/conversation-service/model"
)

// Reconciler 会话合并引擎
// 三个来源（权威快照、本地镜像、增量事件）合并成一份一致的会话列表：
//   - 未读数取max，显式已读是带ReadSeq标记的权威覆盖，
//     ReadSeq落后的一侧不再参与未读数抬高
//   - 最后一条消息按时间戳新者胜，推送先到的消息不会被陈旧快照覆盖
//   - 只在单侧存在的会话保留不丢
//
// 同一事件重复应用、重放旧快照都不会造成状态回退（幂等）。

// MergeEntry 合并同一会话的本地与快照两份状态
func MergeEntry(local, server *model.Conversation) *model.Conversation {
	if local == nil && server == nil {
		return nil
	}
	if local == nil {
		return server.Clone()
	}
	if server == nil {
		return local.Clone()
	}

	merged := local.Clone()

	// 类型与成员以服务端为准
	merged.Type = server.Type
	if len(server.Participants) > 0 {
		merged.Participants = append([]int64(nil), server.Participants...)
	}

	// 已读标记取高位；未读数只信ReadSeq不落后的一侧
	switch {
	case local.ReadSeq > server.ReadSeq:
		merged.UnreadCount = local.UnreadCount
	case server.ReadSeq > local.ReadSeq:
		merged.ReadSeq = server.ReadSeq
		merged.UnreadCount = server.UnreadCount
	default:
		if server.UnreadCount > merged.UnreadCount {
			merged.UnreadCount = server.UnreadCount
		}
	}

	// 最后一条消息新者胜
	if server.LastMessageAt > merged.LastMessageAt {
		merged.LastMessageAt = server.LastMessageAt
		if server.LastMessage != nil {
			msg := *server.LastMessage
			merged.LastMessage = &msg
		}
	}

	// 归档/免打扰/删除标记只采纳进度不落后于本地的快照，
	// 本地已应用归档事件后重放的陈旧快照不得把标记翻回去
	if server.AppliedSeq >= local.AppliedSeq {
		merged.Muted = server.Muted
		merged.MutedUntil = server.MutedUntil
		merged.Archived = server.Archived
		merged.Deleted = server.Deleted
	}

	if server.AppliedSeq > merged.AppliedSeq {
		merged.AppliedSeq = server.AppliedSeq
	}

	return merged
}

// ApplyEvent 把单个增量事件应用到会话状态，返回状态是否变化
// Seq不高于已应用序号的事件视为重放，直接丢弃
// 未识别的事件类型与缺字段的坏事件降级为no-op，绝不中断整轮合并
func ApplyEvent(conv *model.Conversation, event *rest.ConversationEvent, viewerID int64) bool {
	if conv == nil || event == nil {
		return false
	}
	if event.Seq != 0 && event.Seq <= conv.AppliedSeq {
		return false
	}

	changed := false
	switch event.Type {
	case rest.EventTypeMessageCreated:
		if event.Message == nil {
			return false
		}
		if event.Message.Timestamp >= conv.LastMessageAt {
			msg := *event.Message
			conv.LastMessage = &msg
			conv.LastMessageAt = event.Message.Timestamp
			changed = true
		}
		if event.Message.SenderID != viewerID && event.Seq > conv.ReadSeq {
			conv.UnreadCount++
			changed = true
		}

	case rest.EventTypeMessageEdited, rest.EventTypeMessageDeleted:
		if event.Message == nil {
			return false
		}
		if conv.LastMessage != nil && conv.LastMessage.MessageID == event.Message.MessageID {
			msg := *event.Message
			conv.LastMessage = &msg
			changed = true
		}

	case rest.EventTypeMessageStatusUpdated:
		// 状态聚合归message-service，摘要无需变化

	case rest.EventTypeConversationRead:
		if event.Read == nil || event.Read.UserID != viewerID {
			return false
		}
		// 权威覆盖：重置未读并抬高标记，陈旧的max合并不再生效
		if event.Read.ReadSeq > conv.ReadSeq {
			conv.ReadSeq = event.Read.ReadSeq
			conv.UnreadCount = 0
			changed = true
		}

	case rest.EventTypeConversationArchived:
		if event.Archived == nil || event.Archived.UserID != viewerID {
			return false
		}
		if conv.Archived != event.Archived.Archived {
			conv.Archived = event.Archived.Archived
			changed = true
		}

	case rest.EventTypeConversationMuted:
		if event.Muted == nil || event.Muted.UserID != viewerID {
			return false
		}
		conv.Muted = event.Muted.Muted
		conv.MutedUntil = event.Muted.MutedUntil
		changed = true

	default:
		// 未知事件类型，no-op
		return false
	}

	if event.Seq > conv.AppliedSeq {
		conv.AppliedSeq = event.Seq
	}
	if changed {
		conv.UpdatedAt = time.Now()
	}
	return changed
}

// Reconcile 合并权威快照、本地镜像与增量事件
// 合并是纯函数，输入不被修改；结果按最后消息时间倒序
func Reconcile(server, local []*model.Conversation, delta []*rest.ConversationEvent, viewerID int64) []*model.Conversation {
	byID := make(map[string]*model.Conversation, len(local))
	order := make([]string, 0, len(local)+len(server))

	for _, conv := range local {
		byID[conv.ConversationID] = conv.Clone()
		order = append(order, conv.ConversationID)
	}
	for _, conv := range server {
		if existing, ok := byID[conv.ConversationID]; ok {
			byID[conv.ConversationID] = MergeEntry(existing, conv)
		} else {
			byID[conv.ConversationID] = conv.Clone()
			order = append(order, conv.ConversationID)
		}
	}

	for _, event := range delta {
		conv, ok := byID[event.ConversationID]
		if !ok {
			// 尚未缓存的会话，按事件新建最小条目
			if event.Type != rest.EventTypeMessageCreated || event.Message == nil {
				continue
			}
			conv = &model.Conversation{
				ConversationID: event.ConversationID,
				UserID:         viewerID,
			}
			byID[event.ConversationID] = conv
			order = append(order, event.ConversationID)
		}
		ApplyEvent(conv, event, viewerID)
	}

	merged := make([]*model.Conversation, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LastMessageAt > merged[j].LastMessageAt
	})
	return merged
}

// DefaultView 默认视图过滤掉归档与已删除会话，归档视图另查
func DefaultView(list []*model.Conversation) []*model.Conversation {
	visible := make([]*model.Conversation, 0, len(list))
	for _, conv := range list {
		if conv.Archived || conv.Deleted {
			continue
		}
		visible = append(visible, conv)
	}
	return visible
}
