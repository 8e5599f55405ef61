package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/svc"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type globalOptions struct {
	ConfigFile string `short:"f" long:"config" default:"etc/config.yaml" description:"the config file"`
}

var (
	opts    globalOptions
	rootCtx = context.Background()
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	parser := flags.NewParser(&opts, flags.Default)
	registerCommands(parser)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// loadConfig 读取配置文件并初始化日志
func loadConfig() (*config.Config, error) {
	c, err := config.LoadFromFile(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败, %w", err)
	}
	if err := logger.Setup(c.Log.Level, c.Log.Dir); err != nil {
		return nil, fmt.Errorf("初始化日志失败, %w", err)
	}
	return c, nil
}

// withService 读取配置并创建服务上下文，fn 返回后关闭
func withService(fn func(svcCtx *svc.ServiceContext) error) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	svcCtx, err := svc.NewServiceContext(rootCtx, c)
	if err != nil {
		return fmt.Errorf("创建服务上下文失败, %w", err)
	}
	defer svcCtx.Close()
	return fn(svcCtx)
}
