package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/logutil"
	"github.com/TSfhy/mall-jiekou-auto/internal/reporter"
	"github.com/TSfhy/mall-jiekou-auto/internal/runner"
)

func main() {
	configPath := flag.String("config", "config.json", "配置文件路径 (.json/.yaml)")
	groups := flag.String("group", "", "只运行指定的用例组，多个以逗号分隔")
	verbose := flag.Bool("v", false, "同时在终端输出日志")
	flag.Parse()

	os.Exit(run(*configPath, splitGroups(*groups), *verbose))
}

func run(configPath string, groups []string, verbose bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("加载配置失败: %v", err)
		return caseerrors.GetExitCode(err)
	}

	fs := afero.NewOsFs()

	var console io.Writer
	level := slog.LevelInfo
	if verbose {
		console = os.Stderr
		level = slog.LevelDebug
	}
	sink, err := logutil.Open(fs, logutil.Options{Dir: cfg.LogDir, Console: console, Level: level})
	if err != nil {
		log.Printf("打开日志失败: %v", err)
		return caseerrors.ExitCaseFailure
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg, runner.WithFs(fs), runner.WithLogger(sink.Logger))
	if err != nil {
		log.Printf("初始化失败: %v", err)
		return caseerrors.GetExitCode(err)
	}

	collected, err := r.Collect(ctx, groups...)
	if err != nil {
		sink.Error("收集用例失败", "error", err)
		log.Printf("收集用例失败: %v", err)
		return caseerrors.GetExitCode(err)
	}

	startTime := time.Now()
	results := r.Run(ctx, collected)
	duration := time.Since(startTime)

	rep := reporter.New(cfg, fs, os.Stdout)
	if _, err := rep.GenerateReport(results, duration); err != nil {
		log.Printf("生成报告失败: %v", err)
		return caseerrors.ExitCaseFailure
	}
	fmt.Printf("日志文件: %s\n", sink.Path)

	for _, result := range results {
		if !result.Success {
			fmt.Println("测试失败")
			return caseerrors.ExitCaseFailure
		}
	}
	fmt.Println("测试通过")
	return caseerrors.ExitSuccess
}

func splitGroups(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
