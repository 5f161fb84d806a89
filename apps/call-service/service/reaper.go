package service

import (
	"context"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/dao"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/redis"
)

// reaperLockKey 多实例部署下同一时刻只允许一个清理器扫描
const reaperLockKey = "call:reaper:lock"

// Reaper 超时通话清理器
// 兜底处理定时器丢失的振铃通话和超过最大存活时间的进行中通话
type Reaper struct {
	dao         dao.CallDAO
	svc         *Service
	redis       *redis.RedisClient
	logger      logger.Logger
	interval    time.Duration
	maxLifetime time.Duration
	backoff     time.Duration
	now         func() time.Time
}

// NewReaper 创建清理器，redisClient可为nil（单实例部署不需要抢锁）
func NewReaper(callDAO dao.CallDAO, svc *Service, redisClient *redis.RedisClient, log logger.Logger,
	interval, maxLifetime, backoff time.Duration) *Reaper {
	return &Reaper{
		dao:         callDAO,
		svc:         svc,
		redis:       redisClient,
		logger:      log,
		interval:    interval,
		maxLifetime: maxLifetime,
		backoff:     backoff,
		now:         time.Now,
	}
}

// WithClock 注入时钟，测试用
func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	r.now = now
	return r
}

// Run 周期扫描直到ctx取消，扫描失败后按退避间隔重试
func (r *Reaper) Run(ctx context.Context) {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := r.interval
		if err := r.SweepOnce(ctx); err != nil {
			r.logger.Error(ctx, "通话清理扫描失败", logger.F("error", err.Error()))
			wait = r.backoff
		}
		timer.Reset(wait)
	}
}

// SweepOnce 执行一轮扫描
// 振铃超过振铃超时的转missed，进行中超过最大存活时间的强制结束
func (r *Reaper) SweepOnce(ctx context.Context) error {
	if r.redis != nil {
		acquired, err := r.redis.SetNX(ctx, reaperLockKey, 1, r.interval)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
	}

	now := r.now()
	ringingBefore := now.Add(-r.svc.ringTimeout)
	activeBefore := now.Add(-r.maxLifetime)

	stale, err := r.dao.ListStale(ctx, ringingBefore, activeBefore)
	if err != nil {
		return err
	}

	for _, call := range stale {
		var reaped bool
		var err error
		switch call.Status {
		case rest.CallStatusRinging:
			reaped, err = r.svc.TimeoutRing(ctx, call.ID)
		case rest.CallStatusActive:
			reaped, err = r.svc.ForceEnd(ctx, call.ID)
		}
		if err != nil {
			r.logger.Error(ctx, "清理超时通话失败",
				logger.F("call_id", call.ID),
				logger.F("error", err.Error()))
			continue
		}
		if reaped {
			r.logger.Info(ctx, "已清理超时通话",
				logger.F("call_id", call.ID),
				logger.F("status", string(call.Status)))
		}
	}
	return nil
}
