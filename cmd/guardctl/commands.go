package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
	"github.com/omeyang/gatekit/pkg/config/xconf"
	"github.com/omeyang/gatekit/pkg/resilience/xbreaker"
	"github.com/omeyang/gatekit/pkg/resilience/xguard"
	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数错误，main 映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// isCLIUsageError 判定 CLI 框架产生的参数类错误。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "flag") ||
		strings.Contains(msg, "No help topic")
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
// 当 probe 打流量阻塞时，用户可通过再次 Ctrl+C 强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel() // 第一次信号: 优雅取消

		<-sigCh
		signal.Stop(sigCh) // 回收订阅
		os.Exit(130) // 第二次信号: 强制退出
	}()
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createValidateCommand(),
		createProbeCommand(),
	}
}

// loadGuardConfig 从配置文件加载并校验防护链配置。
func loadGuardConfig(configPath, keyPath string) (xguard.Config, error) {
	if configPath == "" {
		return xguard.Config{}, &usageError{msg: "必须通过 --config 指定配置文件"}
	}

	xc, err := xconf.New(configPath)
	if err != nil {
		return xguard.Config{}, fmt.Errorf("加载配置文件失败: %w", err)
	}

	cfg, err := xguard.LoadConfig(xc, keyPath)
	if err != nil {
		return xguard.Config{}, fmt.Errorf("配置无效: %w", err)
	}
	return cfg, nil
}

// createValidateCommand 创建 validate 子命令。
func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "校验配置文件并打印解析后的防护链",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadGuardConfig(cmd.String("config"), cmd.String("path"))
			if err != nil {
				return err
			}
			printConfig(cfg)
			fmt.Println("配置有效")
			return nil
		},
	}
}

// printConfig 打印解析后的防护链结构。
func printConfig(cfg xguard.Config) {
	name := cfg.Name
	if name == "" {
		name = "(未命名)"
	}
	fmt.Printf("防护链: %s\n", name)

	if lc := cfg.Limiter; lc != nil {
		algo := lc.Algorithm
		if algo == "" {
			algo = "token_bucket"
		}
		fmt.Printf("  限流: %s rate=%g/s burst=%d wait=%v\n", algo, lc.Rate, lc.Burst, lc.Wait)
	} else {
		fmt.Println("  限流: 未启用")
	}

	if bc := cfg.Breaker; bc != nil {
		fmt.Printf("  熔断: max_failures=%d failure_rate=%g recovery=%v half_open=%d\n",
			bc.MaxFailures, bc.FailureRate, bc.RecoveryTimeout, bc.HalfOpenMaxCalls)
	} else {
		fmt.Println("  熔断: 未启用")
	}

	if rc := cfg.Retry; rc != nil {
		fmt.Printf("  重试: max_retry=%d initial=%v max=%v jitter=%s\n",
			rc.MaxRetry, rc.InitialDelay, rc.MaxDelay, rc.Jitter)
	} else {
		fmt.Println("  重试: 未启用")
	}
}

// createProbeCommand 创建 probe 子命令。
func createProbeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "按配置构建防护链并注入模拟流量",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "requests",
				Aliases: []string{"n"},
				Usage:   "请求总数",
				Value:   100,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "并发 worker 数",
				Value:   1,
			},
			&cli.FloatFlag{
				Name:  "fail-rate",
				Usage: "模拟操作的故障率 (0-1)",
			},
			&cli.DurationFlag{
				Name:  "op-delay",
				Usage: "模拟操作的单次耗时",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "故障注入的随机种子 (0 表示随机)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadGuardConfig(cmd.String("config"), cmd.String("path"))
			if err != nil {
				return err
			}

			opts := probeOptions{
				requests: cmd.Int("requests"),
				workers:  cmd.Int("workers"),
				failRate: cmd.Float("fail-rate"),
				opDelay:  cmd.Duration("op-delay"),
				seed:     cmd.Uint64("seed"),
			}
			if err := opts.validate(); err != nil {
				return err
			}

			result, err := runProbe(ctx, cfg, opts)
			if err != nil {
				return err
			}
			result.print(os.Stdout)
			return nil
		},
	}
}

// probeOptions probe 命令参数。
type probeOptions struct {
	requests int
	workers  int
	failRate float64
	opDelay  time.Duration
	seed     uint64
}

func (o probeOptions) validate() error {
	if o.requests < 1 {
		return &usageError{msg: fmt.Sprintf("请求总数必须为正数: %d", o.requests)}
	}
	if o.workers < 1 {
		return &usageError{msg: fmt.Sprintf("并发 worker 数必须为正数: %d", o.workers)}
	}
	if o.failRate < 0 || o.failRate > 1 {
		return &usageError{msg: fmt.Sprintf("故障率必须在 [0, 1] 内: %g", o.failRate)}
	}
	if o.opDelay < 0 {
		return &usageError{msg: fmt.Sprintf("单次耗时不能为负: %v", o.opDelay)}
	}
	return nil
}

// errInjected 故障注入产生的模拟失败。
var errInjected = errors.New("injected failure")

// probeResult 逐类结果统计。
type probeResult struct {
	requests        int64
	success         atomic.Int64
	rateLimited     atomic.Int64
	breakerRejected atomic.Int64
	exhausted       atomic.Int64
	failed          atomic.Int64
	elapsed         time.Duration
	finalState      xbreaker.State
	hasBreaker      bool
}

func (r *probeResult) record(err error) {
	switch {
	case err == nil:
		r.success.Add(1)
	case xguard.IsRateLimited(err):
		r.rateLimited.Add(1)
	case xbreaker.IsBreakerError(err):
		r.breakerRejected.Add(1)
	case xretry.IsExhausted(err):
		r.exhausted.Add(1)
	default:
		r.failed.Add(1)
	}
}

func (r *probeResult) print(w *os.File) {
	fmt.Fprintf(w, "请求总数:   %d\n", r.requests)
	fmt.Fprintf(w, "成功:       %d\n", r.success.Load())
	fmt.Fprintf(w, "限流拒绝:   %d\n", r.rateLimited.Load())
	fmt.Fprintf(w, "熔断拦截:   %d\n", r.breakerRejected.Load())
	fmt.Fprintf(w, "重试耗尽:   %d\n", r.exhausted.Load())
	fmt.Fprintf(w, "其他失败:   %d\n", r.failed.Load())
	fmt.Fprintf(w, "总耗时:     %v\n", r.elapsed.Round(time.Millisecond))
	if r.hasBreaker {
		fmt.Fprintf(w, "熔断器终态: %s\n", r.finalState)
	}
}

// runProbe 构建防护链并注入模拟流量。
func runProbe(ctx context.Context, cfg xguard.Config, opts probeOptions) (*probeResult, error) {
	g, err := xguard.FromConfig(cfg, nil)
	if err != nil {
		return nil, err
	}

	seed := opts.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	result := &probeResult{requests: int64(opts.requests)}
	// 故障注入序列预先生成，worker 间无需共享随机源
	failures := make([]bool, opts.requests)
	rng := rand.New(rand.NewPCG(seed, 0))
	for i := range failures {
		failures[i] = rng.Float64() < opts.failRate
	}

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.workers)

	for i := 0; i < opts.requests; i++ {
		fail := failures[i]
		eg.Go(func() error {
			err := g.Do(egCtx, func(opCtx context.Context) error {
				if opts.opDelay > 0 {
					if err := xtick.SleepContext(opCtx, opts.opDelay); err != nil {
						return err
					}
				}
				if fail {
					return errInjected
				}
				return nil
			})
			if egCtx.Err() != nil {
				// 外部取消，不计入统计
				return egCtx.Err()
			}
			result.record(err)
			return nil
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	result.elapsed = time.Since(start)

	if b := g.Breaker(); b != nil {
		result.hasBreaker = true
		result.finalState = b.State()
	}
	return result, nil
}
