package dao

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
	"orgtalk/pkg/database"
)

// mongoDAO MongoDB实现
type mongoDAO struct {
	db *database.MongoDB
}

// NewMongoDAO 创建MongoDB消息DAO
func NewMongoDAO(db *database.MongoDB) MessageDAO {
	return &mongoDAO{db: db}
}

// EnsureIndexes 创建唯一索引
func (d *mongoDAO) EnsureIndexes(ctx context.Context) error {
	messages := d.db.GetCollection(model.CollectionMessages)
	_, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("创建message_id唯一索引失败: %w", err)
	}

	statuses := d.db.GetCollection(model.CollectionMessageStatus)
	_, err = statuses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "recipient_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("创建状态唯一索引失败: %w", err)
	}
	return nil
}

// SaveMessage 保存消息，唯一索引重复视为幂等触发
func (d *mongoDAO) SaveMessage(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = time.Now()

	_, err := d.db.GetCollection(model.CollectionMessages).InsertOne(ctx, msg)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("保存消息失败: %w", err)
	}
	return nil
}

// GetMessage 按消息ID查询
func (d *mongoDAO) GetMessage(ctx context.Context, messageID int64) (*model.Message, error) {
	var msg model.Message
	err := d.db.GetCollection(model.CollectionMessages).
		FindOne(ctx, bson.M{"message_id": messageID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("消息不存在: MessageID=%d", messageID)
		}
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return &msg, nil
}

// ListHistory 按会话分页查询历史消息
func (d *mongoDAO) ListHistory(ctx context.Context, conversationID string, page, size int) ([]*model.Message, int64, error) {
	collection := d.db.GetCollection(model.CollectionMessages)
	filter := bson.M{"conversation_id": conversationID}

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("统计消息数量失败: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("查询消息失败: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*model.Message
	for cursor.Next(ctx) {
		var msg model.Message
		if err := cursor.Decode(&msg); err != nil {
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, total, nil
}

// MarkEdited 编辑消息内容
func (d *mongoDAO) MarkEdited(ctx context.Context, messageID, senderID int64, content string) error {
	result, err := d.db.GetCollection(model.CollectionMessages).UpdateOne(ctx,
		bson.M{"message_id": messageID, "sender_id": senderID, "deleted": false},
		bson.M{"$set": bson.M{"content": content, "edited": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("编辑消息失败: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("消息不存在或无权限编辑: MessageID=%d", messageID)
	}
	return nil
}

// MarkDeleted 软删除消息，墓碑状态
func (d *mongoDAO) MarkDeleted(ctx context.Context, messageID, userID int64) error {
	result, err := d.db.GetCollection(model.CollectionMessages).UpdateOne(ctx,
		bson.M{"message_id": messageID, "sender_id": userID},
		bson.M{"$set": bson.M{"deleted": true, "content": "", "media_ref": "", "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("删除消息失败: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("消息不存在或无权限删除: MessageID=%d", messageID)
	}
	return nil
}

// AdvanceStatus 推进投递状态
// 过滤条件限定只有低位状态才会被更新，并发下逆向写天然被挡住
func (d *mongoDAO) AdvanceStatus(ctx context.Context, messageID, recipientID int64, status rest.DeliveryState, at int64) error {
	if status.Rank() < 0 {
		return fmt.Errorf("非法的投递状态: %s", status)
	}
	collection := d.db.GetCollection(model.CollectionMessageStatus)

	// 初始记录不存在时先补一条sent
	_, err := collection.InsertOne(ctx, &model.MessageStatus{
		MessageID:   messageID,
		RecipientID: recipientID,
		Status:      string(rest.DeliveryStateSent),
		UpdatedAt:   time.Now(),
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("初始化状态记录失败: %w", err)
	}

	if status == rest.DeliveryStateSent {
		return nil
	}

	var lower []string
	set := bson.M{"status": string(status), "updated_at": time.Now()}
	switch status {
	case rest.DeliveryStateDelivered:
		lower = []string{string(rest.DeliveryStateSent)}
		set["delivered_at"] = at
	case rest.DeliveryStateRead:
		lower = []string{string(rest.DeliveryStateSent), string(rest.DeliveryStateDelivered)}
		set["read_at"] = at
	}

	// 匹配0行说明状态已到位或更高，幂等no-op
	_, err = collection.UpdateOne(ctx,
		bson.M{"message_id": messageID, "recipient_id": recipientID, "status": bson.M{"$in": lower}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("更新投递状态失败: %w", err)
	}
	return nil
}

// ListStatuses 查询消息的全部接收者状态
func (d *mongoDAO) ListStatuses(ctx context.Context, messageID int64) ([]*model.MessageStatus, error) {
	cursor, err := d.db.GetCollection(model.CollectionMessageStatus).
		Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, fmt.Errorf("查询状态记录失败: %w", err)
	}
	defer cursor.Close(ctx)

	var statuses []*model.MessageStatus
	for cursor.Next(ctx) {
		var st model.MessageStatus
		if err := cursor.Decode(&st); err != nil {
			continue
		}
		statuses = append(statuses, &st)
	}
	return statuses, nil
}
