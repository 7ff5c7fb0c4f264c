package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iabetor/nius/internal/config"
	"github.com/iabetor/nius/internal/database"
	"github.com/iabetor/nius/internal/journal"
	"github.com/iabetor/nius/internal/logger"
	"github.com/iabetor/nius/internal/output"
	"github.com/iabetor/nius/internal/pipeline"
	"github.com/iabetor/nius/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "configs/nius.yaml", "配置文件路径")
	outPath := flag.String("out", "", "输出文件路径，\"-\" 表示标准输出（覆盖 output.path）")
	schedule := flag.String("schedule", "", "cron 表达式，按计划重复运行（覆盖 schedule.cron）")
	once := flag.Bool("once", false, "忽略计划，只运行一次")
	history := flag.Int("history", 0, "打印最近 N 次运行记录后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		cfg.Output.Path = *outPath
	}
	if *schedule != "" {
		cfg.Schedule.Cron = *schedule
	}
	if *once {
		cfg.Schedule.Cron = ""
	}

	if err := logger.Init(cfg.Log.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *history); err != nil {
		logger.Errorf("[main] %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(cfg *config.Config, history int) error {
	var (
		store *journal.Store
		opts  []pipeline.Option
	)
	if cfg.Journal.Path != "" {
		db, err := database.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("打开运行记录失败: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("迁移运行记录失败: %w", err)
		}
		store = journal.New(db)
		opts = append(opts, pipeline.WithRecorder(store))
	}

	if history > 0 {
		if store == nil {
			return errors.New("未配置 journal.path，没有运行记录")
		}
		runs, err := store.Recent(context.Background(), history)
		if err != nil {
			return err
		}
		journal.Format(os.Stdout, runs)
		printLastOutput(cfg.Output.Path)
		return nil
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	runOnce := func(ctx context.Context) error {
		out, err := p.Run(ctx)
		if err != nil {
			return err
		}
		if err := output.Write(cfg.Output.Path, out.Result); err != nil {
			return fmt.Errorf("写入输出失败: %w", err)
		}
		logger.Infof("[main] 已写入 %d 张卡片到 %s", len(out.Result.Cards), cfg.Output.Path)
		if store != nil && cfg.Journal.Keep > 0 {
			if n, err := store.Prune(ctx, cfg.Journal.Keep); err != nil {
				logger.Warnf("[main] %v", err)
			} else if n > 0 {
				logger.Debugf("[main] 清理了 %d 条旧运行记录", n)
			}
		}
		return nil
	}

	if cfg.Schedule.Cron == "" {
		if err := runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	sched, err := scheduler.New(cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	err = sched.Schedule(cfg.Schedule.Cron, func(ctx context.Context) {
		if err := runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("[main] 定时运行失败: %v", err)
		}
	})
	if err != nil {
		return err
	}

	logger.Infof("[main] nius 以定时模式启动 (cron=%q)", cfg.Schedule.Cron)
	if err := runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("[main] 首次运行失败: %v", err)
	}
	sched.Start()
	<-ctx.Done()
	sched.Stop()

	logger.Infof("[main] nius 已停止")
	return nil
}

// printLastOutput 打印最近一次写入的输出概况，输出到标准输出时跳过。
func printLastOutput(path string) {
	if path == output.Stdout {
		return
	}
	res, err := output.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "读取最近输出失败: %v\n", err)
		}
		return
	}
	fmt.Printf("\n最近输出 %s: %d 张卡片，来源 %s\n", path, len(res.Cards), strings.Join(res.SourceLabels, ", "))
}
