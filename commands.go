package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fachebot/vesuvius-study/internal/discord"
	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/pipeline"
	"github.com/fachebot/vesuvius-study/internal/report"
	"github.com/fachebot/vesuvius-study/internal/scheduler"
	"github.com/fachebot/vesuvius-study/internal/search"
	"github.com/fachebot/vesuvius-study/internal/svc"
	"github.com/fachebot/vesuvius-study/internal/topic"

	"github.com/jessevdk/go-flags"
)

func registerCommands(parser *flags.Parser) {
	commands := []struct {
		name, short string
		data        any
	}{
		{"filter", "按日期范围过滤导出文件", &filterCommand{}},
		{"move-empty", "移走没有消息的导出文件", &moveEmptyCommand{}},
		{"txt", "把导出文件渲染为纯文本", &txtCommand{}},
		{"fetch", "通过 Discord API 拉取频道历史", &fetchCommand{}},
		{"index", "按时间分组生成检索文档", &indexCommand{}},
		{"search", "在检索文档中查找相似内容", &searchCommand{}},
		{"classify", "调用模型进行情绪与情感分类", &classifyCommand{}},
		{"topics", "训练 LDA 话题模型并按话题分组", &topicsCommand{}},
		{"watch", "定时重试残留的无效分类结果", &watchCommand{}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			logger.Fatalf("注册子命令 %s 失败, %v", c.name, err)
		}
	}
}

type filterCommand struct {
	Input  string `long:"input" description:"原始导出目录，默认 Paths.InputDir"`
	Output string `long:"output" description:"输出目录，默认 Paths.FilteredDir"`
}

func (cmd *filterCommand) Execute(args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	start, end, err := c.Filter.Range()
	if err != nil {
		return err
	}
	return export.FilterDir(orDefault(cmd.Input, c.Paths.InputDir), orDefault(cmd.Output, c.Paths.FilteredDir), start, end)
}

type moveEmptyCommand struct{}

func (cmd *moveEmptyCommand) Execute(args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	moved, err := export.MoveEmpty(c.Paths.FilteredDir, c.Paths.EmptyDir)
	if err != nil {
		return err
	}
	for _, name := range moved {
		logger.Infof("[Filter] 已移动空文件: %s", name)
	}
	logger.Infof("[Filter] 共移动 %d 个文件到 %s", len(moved), c.Paths.EmptyDir)
	return nil
}

type txtCommand struct {
	Stdout bool `long:"stdout" description:"输出到标准输出而不是文件"`
	Args   struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

func (cmd *txtCommand) Execute(args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	for _, path := range cmd.Args.Files {
		e, err := export.LoadFile(path)
		if err != nil {
			return err
		}
		if cmd.Stdout {
			if err := export.RenderText(os.Stdout, e); err != nil {
				return err
			}
			continue
		}

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		outPath := filepath.Join(c.Paths.OutputDir, base+".txt")
		if err := writeText(outPath, e); err != nil {
			return err
		}
		logger.Infof("[Text] 已写入 %s", outPath)
	}
	return nil
}

func writeText(path string, e *export.Export) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.RenderText(f, e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type fetchCommand struct {
	Channel string `long:"channel" required:"true" description:"频道 ID"`
	Limit   int    `long:"limit" default:"0" description:"最多拉取的消息数，0 表示全部"`
}

func (cmd *fetchCommand) Execute(args []string) error {
	return withService(func(svcCtx *svc.ServiceContext) error {
		fetcher, err := discord.NewFetcher(svcCtx.Config.Discord.Token, svcCtx.HTTPClient())
		if err != nil {
			return err
		}
		e, err := fetcher.FetchChannel(rootCtx, cmd.Channel, cmd.Limit)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("%s - %s [%s].json", e.Guild.Name, e.Channel.Name, e.Channel.ID)
		outPath := filepath.Join(svcCtx.Config.Paths.InputDir, name)
		if err := export.WriteFile(outPath, e); err != nil {
			return err
		}
		logger.Infof("[Discord] 已保存到 %s", outPath)
		return nil
	})
}

type indexCommand struct{}

func (cmd *indexCommand) Execute(args []string) error {
	return withService(func(svcCtx *svc.ServiceContext) error {
		c := svcCtx.Config
		msgs, err := export.LoadDir(c.Paths.FilteredDir)
		if err != nil {
			return err
		}

		run, err := svcCtx.RunModel.Create(rootCtx, "index")
		if err != nil {
			return err
		}
		bookCtx := context.WithoutCancel(rootCtx)
		docs := pipeline.BuildDocuments(msgs, c.Grouping.Threshold())
		if err := pipeline.Index(rootCtx, docs, svcCtx.DocumentModel); err != nil {
			markFailed(bookCtx, svcCtx, run.ID, err)
			return err
		}
		return svcCtx.RunModel.MarkCompleted(bookCtx, run.ID, fmt.Sprintf("%d documents", len(docs)))
	})
}

type searchCommand struct {
	TopK int `short:"k" long:"top" description:"返回的文档数，默认 Search.TopK"`
	Args struct {
		Query []string `positional-arg-name:"QUERY" required:"1"`
	} `positional-args:"yes"`
}

func (cmd *searchCommand) Execute(args []string) error {
	return withService(func(svcCtx *svc.ServiceContext) error {
		docs, err := svcCtx.DocumentModel.All(rootCtx)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return errors.New("文档表为空，请先运行 index")
		}

		idx, err := search.Build(docs)
		if err != nil {
			return err
		}
		k := cmd.TopK
		if k <= 0 {
			k = svcCtx.Config.Search.TopK
		}
		hits, err := idx.Search(strings.Join(cmd.Args.Query, " "), k)
		if err != nil {
			return err
		}

		for i, hit := range hits {
			fmt.Printf("#%d score=%.4f authors=%s\n%s\n\n", i+1, hit.Score, strings.Join(hit.Document.Authors, ", "), hit.Document.Text)
		}
		if len(hits) == 0 {
			logger.Infof("[Search] 没有匹配的文档")
		}
		return nil
	})
}

type classifyCommand struct{}

func (cmd *classifyCommand) Execute(args []string) error {
	return withService(func(svcCtx *svc.ServiceContext) error {
		c := svcCtx.Config
		if err := c.ValidateLLM(); err != nil {
			return err
		}
		tasks, err := svcCtx.Tasks()
		if err != nil {
			return err
		}
		msgs, err := export.LoadDir(c.Paths.FilteredDir)
		if err != nil {
			return err
		}

		run, err := svcCtx.RunModel.Create(rootCtx, "classify")
		if err != nil {
			return err
		}
		// 中断后仍要写出已有结果并更新运行记录
		bookCtx := context.WithoutCancel(rootCtx)
		out, err := pipeline.Classify(rootCtx, svcCtx.NewDriver(c.Classify.MaxRetries), tasks, msgs, svcCtx.LabelModel)
		if out != nil {
			outPath := filepath.Join(c.Paths.OutputDir, c.Classify.Output)
			if werr := report.WriteWorkbook(outPath, out.Rows, out.Columns()); werr != nil {
				logger.Errorf("[Report] 写出结果失败: %v", werr)
				err = errors.Join(err, werr)
			} else {
				logger.Infof("[Report] 已写入 %s", outPath)
			}
		}
		if err != nil {
			markFailed(bookCtx, svcCtx, run.ID, err)
			return err
		}

		var summary []string
		for _, r := range out.Results {
			summary = append(summary, fmt.Sprintf("%s: %s", r.Task, r.Status))
		}
		return svcCtx.RunModel.MarkCompleted(bookCtx, run.ID, strings.Join(summary, ", "))
	})
}

type topicsCommand struct {
	TopWords int `long:"top-words" default:"10" description:"每个话题输出的关键词数"`
}

func (cmd *topicsCommand) Execute(args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	msgs, err := export.LoadDir(c.Paths.FilteredDir)
	if err != nil {
		return err
	}

	index, err := pipeline.Topics(msgs, topic.Options{
		NumTopics:  c.Topics.NumTopics,
		Iterations: c.Topics.Iterations,
		Stopwords:  c.Topics.CustomStopwords,
	}, cmd.TopWords)
	if err != nil {
		return err
	}
	return index.WriteJSON(filepath.Join(c.Paths.OutputDir, c.Topics.Output))
}

type watchCommand struct {
	Once bool `long:"once" description:"立即执行一次后退出"`
}

func (cmd *watchCommand) Execute(args []string) error {
	return withService(func(svcCtx *svc.ServiceContext) error {
		c := svcCtx.Config
		if err := c.ValidateLLM(); err != nil {
			return err
		}
		tasks, err := svcCtx.Tasks()
		if err != nil {
			return err
		}

		schedulerInstance := scheduler.NewScheduler(
			svcCtx.NewDriver(c.Retry.MaxRetries),
			tasks,
			c.Classify.RetryErrors,
			svcCtx.LabelModel,
			svcCtx.RunModel,
			&c.Retry,
		)
		if cmd.Once {
			_, err := schedulerInstance.RunOnce(rootCtx)
			return err
		}

		if err := schedulerInstance.Start(); err != nil {
			return err
		}

		// 等待程序退出
		<-rootCtx.Done()
		logger.Infof("正在关闭服务...")
		schedulerInstance.Stop()
		logger.Infof("服务已停止")
		return nil
	})
}

func markFailed(ctx context.Context, svcCtx *svc.ServiceContext, runID string, cause error) {
	if err := svcCtx.RunModel.MarkFailed(ctx, runID, cause.Error()); err != nil {
		logger.Errorf("标记运行 %s 失败状态出错: %v", runID, err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
