// guardctl 是 xguard 防护链配置的命令行工具。
//
// 用法:
//
//	guardctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径 (JSON 或 YAML)
//	-p, --path     配置文件内防护链配置的键路径 (默认: guard)
//
// 命令:
//
//	validate       校验配置文件并打印解析后的防护链
//	probe          按配置构建防护链并注入模拟流量，打印逐类结果统计
//	help           显示帮助信息
//
// 退出码:
//
//	0: 命令执行成功（validate 命令: 配置有效）
//	1: 命令执行失败或配置无效
//	2: 参数错误（缺少配置文件、未知命令等）
//
// 示例:
//
//	guardctl -c guard.yaml validate               # 校验配置
//	guardctl -c guard.yaml -p service.api probe   # 用嵌套路径下的配置打流量
//	guardctl -c guard.yaml probe -n 500 -w 8      # 500 次请求 8 个并发
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "guardctl",
		Usage:   "xguard 防护链配置工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (JSON 或 YAML)",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "配置文件内防护链配置的键路径",
				Value:   "guard",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"XKit Team",
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// ExitCoder 错误（如未知命令）的消息需在此输出，
			// 替代 HandleExitCoder 的默认 os.Exit 行为。
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
		Description: `guardctl 围绕 xguard 的声明式配置提供两类操作：
离线校验（validate）和本地流量演练（probe）。

probe 命令按配置构建完整防护链（限流 / 熔断 / 重试），
向其注入可控的模拟流量（请求数、并发度、故障率、单次耗时），
并打印限流拒绝、熔断拦截、重试耗尽等逐类统计，
用于上线前评估一组防护参数的实际行为。`,
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if isCLIUsageError(err) {
			// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
