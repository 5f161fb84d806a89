package dao

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orgtalk/apps/ptt-service/model"
	"orgtalk/pkg/redis"
)

// floorKeyFmt 发言权锁键，ptt:floor:<conversation_id>
const floorKeyFmt = "ptt:floor:%s"

// releaseScript 持有者校验后删除，非持有者不动锁
// 值格式 <speaker_id>:<started_at_ms>，返回被删的值
const releaseScript = `
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. ':' then
	redis.call('DEL', KEYS[1])
	return v
end
return false
`

// refreshScript 持有者校验后续期TTL
const refreshScript = `
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. ':' then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// redisSessionStore 基于redis的发言权存储，跨实例互斥
type redisSessionStore struct {
	redis *redis.RedisClient
}

// NewRedisSessionStore 创建redis存储实例
func NewRedisSessionStore(redisClient *redis.RedisClient) SessionStore {
	return &redisSessionStore{redis: redisClient}
}

func (s *redisSessionStore) Acquire(ctx context.Context, conversationID string, userID int64, startedAt int64, ttl time.Duration) (bool, *model.Session, error) {
	key := fmt.Sprintf(floorKeyFmt, conversationID)
	value := fmt.Sprintf("%d:%d", userID, startedAt)

	acquired, err := s.redis.SetNX(ctx, key, value, ttl)
	if err != nil {
		return false, nil, err
	}
	if acquired {
		return true, nil, nil
	}

	current, err := s.Get(ctx, conversationID)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

func (s *redisSessionStore) Refresh(ctx context.Context, conversationID string, userID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(floorKeyFmt, conversationID)
	result, err := s.redis.Eval(ctx, refreshScript, []string{key},
		strconv.FormatInt(userID, 10), strconv.FormatInt(ttl.Milliseconds(), 10))
	if err != nil {
		return false, err
	}
	n, ok := result.(int64)
	return ok && n == 1, nil
}

func (s *redisSessionStore) Release(ctx context.Context, conversationID string, userID int64) (*model.Session, error) {
	key := fmt.Sprintf(floorKeyFmt, conversationID)
	result, err := s.redis.Eval(ctx, releaseScript, []string{key}, strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	value, ok := result.(string)
	if !ok {
		// 非持有者或锁已过期
		return nil, nil
	}
	return parseSession(conversationID, value)
}

func (s *redisSessionStore) Get(ctx context.Context, conversationID string) (*model.Session, error) {
	key := fmt.Sprintf(floorKeyFmt, conversationID)
	value, err := s.redis.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseSession(conversationID, value)
}

// parseSession 解析 <speaker_id>:<started_at_ms> 格式的锁值
func parseSession(conversationID, value string) (*model.Session, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("发言权锁值格式非法: %s", value)
	}
	speakerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("发言权锁值格式非法: %s", value)
	}
	startedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("发言权锁值格式非法: %s", value)
	}
	return &model.Session{
		ConversationID: conversationID,
		SpeakerID:      speakerID,
		StartedAt:      startedAt,
	}, nil
}
