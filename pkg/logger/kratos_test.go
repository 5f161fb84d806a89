package logger

import (
	"context"
	"testing"

	kratoslog "github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

// recordingLogger 记录每次调用的级别与消息
type recordingLogger struct {
	levels []string
	msgs   []string
}

func (r *recordingLogger) record(level, msg string) {
	r.levels = append(r.levels, level)
	r.msgs = append(r.msgs, msg)
}

func (r *recordingLogger) Info(ctx context.Context, msg string, fields ...Field) {
	r.record("info", msg)
}

func (r *recordingLogger) Error(ctx context.Context, msg string, fields ...Field) {
	r.record("error", msg)
}

func (r *recordingLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	r.record("warn", msg)
}

func (r *recordingLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	r.record("debug", msg)
}

func (r *recordingLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	r.record("fatal", msg)
}

func (r *recordingLogger) WithContext(ctx context.Context) Logger {
	return r
}

// Kratos各级别映射到底层日志器的对应方法，fatal也不例外
func TestKratosLoggerLevelMapping(t *testing.T) {
	rec := &recordingLogger{}
	kl := NewKratosLogger(rec)

	levels := []kratoslog.Level{
		kratoslog.LevelDebug,
		kratoslog.LevelInfo,
		kratoslog.LevelWarn,
		kratoslog.LevelError,
		kratoslog.LevelFatal,
	}
	for _, level := range levels {
		err := kl.Log(level, "msg", "boom", "key", "value")
		assert.NoError(t, err)
	}

	assert.Equal(t, []string{"debug", "info", "warn", "error", "fatal"}, rec.levels)
	for _, msg := range rec.msgs {
		assert.Equal(t, "boom", msg)
	}
}

// 空键值对直接返回，不落日志
func TestKratosLoggerEmptyKeyvals(t *testing.T) {
	rec := &recordingLogger{}
	kl := NewKratosLogger(rec)

	assert.NoError(t, kl.Log(kratoslog.LevelInfo))
	assert.Empty(t, rec.levels)
}
