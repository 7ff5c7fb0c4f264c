package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/iabetor/nius/internal/config"
	"github.com/iabetor/nius/internal/database"
	"github.com/iabetor/nius/internal/journal"
)

func main() {
	configPath := flag.String("config", "configs/nius.yaml", "配置文件路径")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if cfg.Journal.Path == "" {
		fmt.Fprintln(os.Stderr, "运行记录未启用，请在配置文件中设置 journal.path")
		os.Exit(1)
	}

	db, err := database.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开运行记录失败: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "迁移运行记录失败: %v\n", err)
		os.Exit(1)
	}
	store := journal.New(db)

	switch args[0] {
	case "list":
		n := 10
		if len(args) > 1 {
			n = parseCount(args[1])
		}
		cmdList(store, n)
	case "prune":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: nius-journal prune <保留数量>")
			os.Exit(1)
		}
		cmdPrune(store, parseCount(args[1]))
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "nius 运行记录管理工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: nius-journal [-config <path>] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  list [N]       列出最近 N 次运行（默认 10）及失败的源")
	fmt.Fprintln(os.Stderr, "  prune <keep>   只保留最近 keep 次运行")
}

func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "无效的数量: %s\n", s)
		os.Exit(1)
	}
	return n
}

func cmdList(store *journal.Store, n int) {
	runs, err := store.Recent(context.Background(), n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取运行记录失败: %v\n", err)
		os.Exit(1)
	}
	journal.Format(os.Stdout, runs)
}

func cmdPrune(store *journal.Store, keep int) {
	n, err := store.Prune(context.Background(), keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "清理失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("已删除 %d 条运行记录。\n", n)
}
