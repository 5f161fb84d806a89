package sessionlocator

import (
	"context"
	"fmt"
	"time"

	redisClient "orgtalk/pkg/redis"
)

// RouteTable 用户连接路由表
// 网关在用户连接建立/断开时写入，信令侧按用户查出持有连接的网关实例
type RouteTable struct {
	redis *redisClient.RedisClient
}

// NewRouteTable 创建路由表
func NewRouteTable(redis *redisClient.RedisClient) *RouteTable {
	return &RouteTable{redis: redis}
}

// BindUser 绑定用户到网关实例
func (rt *RouteTable) BindUser(ctx context.Context, userID int64, instanceID string) error {
	key := fmt.Sprintf(UserRouteKeyFmt, userID)
	if err := rt.redis.Set(ctx, key, instanceID, time.Duration(HeartbeatWindow)*time.Second); err != nil {
		return fmt.Errorf("绑定用户路由失败: %w", err)
	}
	return nil
}

// RefreshUser 续期用户路由（随网关心跳调用）
func (rt *RouteTable) RefreshUser(ctx context.Context, userID int64) error {
	key := fmt.Sprintf(UserRouteKeyFmt, userID)
	return rt.redis.Expire(ctx, key, time.Duration(HeartbeatWindow)*time.Second)
}

// UnbindUser 解绑用户路由（连接断开时调用）
func (rt *RouteTable) UnbindUser(ctx context.Context, userID int64) error {
	key := fmt.Sprintf(UserRouteKeyFmt, userID)
	return rt.redis.Del(ctx, key)
}

// LookupUser 查询持有用户连接的网关实例ID，未在线返回空串
func (rt *RouteTable) LookupUser(ctx context.Context, userID int64) (string, error) {
	key := fmt.Sprintf(UserRouteKeyFmt, userID)
	instanceID, err := rt.redis.Get(ctx, key)
	if err != nil {
		if redisClient.IsNil(err) {
			return "", nil
		}
		return "", err
	}
	return instanceID, nil
}
