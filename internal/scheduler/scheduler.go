// Package scheduler 按 cron 表达式周期性触发聚合运行。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/nius/internal/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 一次定时任务，ctx 在 Stop 时取消。
type Task func(ctx context.Context)

// Scheduler 包装 cron.Cron，同一时刻最多只有一个任务在执行。
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location

	mu      sync.Mutex
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New 创建指定时区的调度器，timezone 为空或 "Local" 时使用本地时区。
func New(timezone string) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("加载时区 %q 失败: %w", timezone, err)
		}
		loc = l
	}

	cl := cronLogger{l: logger.Named("scheduler")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		location: loc,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Location 调度使用的时区。
func (s *Scheduler) Location() *time.Location { return s.location }

// Schedule 注册任务，已有任务时替换。支持标准五段式表达式和 @every、@hourly 等描述符。
func (s *Scheduler) Schedule(spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { task(s.ctx) })
	if err != nil {
		return fmt.Errorf("无效的 cron 表达式 %q: %w", spec, err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	logger.Infof("[scheduler] 已计划 %q (%s)，下次运行 %s", spec, s.location, s.next().Format(time.RFC3339))
	return nil
}

// Next 下一次触发时间，未计划时返回零值。
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Scheduler) next() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	e := s.cron.Entry(s.entryID)
	if !e.Next.IsZero() {
		return e.Next
	}
	if e.Schedule == nil {
		return time.Time{}
	}
	return e.Schedule.Next(time.Now().In(s.location))
}

// Start 在后台启动调度。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度，取消正在执行的任务并等待其返回。
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger 把 cron 的日志转到 zap。
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
