package dao

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orgtalk/apps/conversation-service/model"
	"orgtalk/pkg/database"
)

// mongoDAO MongoDB实现
type mongoDAO struct {
	db *database.MongoDB
}

// NewMongoDAO 创建MongoDB会话DAO
func NewMongoDAO(db *database.MongoDB) ConversationDAO {
	return &mongoDAO{db: db}
}

// EnsureIndexes 创建(user_id, conversation_id)唯一索引
func (d *mongoDAO) EnsureIndexes(ctx context.Context) error {
	_, err := d.db.GetCollection(model.CollectionConversations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "conversation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("创建会话唯一索引失败: %w", err)
	}
	return nil
}

// Upsert 覆盖写入镜像行
func (d *mongoDAO) Upsert(ctx context.Context, conv *model.Conversation) error {
	conv.UpdatedAt = time.Now()
	_, err := d.db.GetCollection(model.CollectionConversations).ReplaceOne(ctx,
		bson.M{"user_id": conv.UserID, "conversation_id": conv.ConversationID},
		conv,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("写入会话镜像失败: %w", err)
	}
	return nil
}

// Get 查询单行
func (d *mongoDAO) Get(ctx context.Context, userID int64, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := d.db.GetCollection(model.CollectionConversations).
		FindOne(ctx, bson.M{"user_id": userID, "conversation_id": conversationID}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &conv, nil
}

// ListByUser 查询用户的全部会话
func (d *mongoDAO) ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	return d.list(ctx, bson.M{"user_id": userID})
}

// ListByConversation 查询会话下所有参与者的行
func (d *mongoDAO) ListByConversation(ctx context.Context, conversationID string) ([]*model.Conversation, error) {
	return d.list(ctx, bson.M{"conversation_id": conversationID})
}

func (d *mongoDAO) list(ctx context.Context, filter bson.M) ([]*model.Conversation, error) {
	cursor, err := d.db.GetCollection(model.CollectionConversations).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []*model.Conversation
	for cursor.Next(ctx) {
		var conv model.Conversation
		if err := cursor.Decode(&conv); err != nil {
			continue
		}
		conversations = append(conversations, &conv)
	}
	return conversations, nil
}
