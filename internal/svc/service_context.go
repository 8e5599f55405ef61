package svc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/fachebot/vesuvius-study/internal/llm"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/model"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	Store          *model.Store
	TransportProxy *http.Transport
	RunModel       *model.RunModel
	LabelModel     *model.LabelModel
	DocumentModel  *model.DocumentModel
	LLMClient      *llm.Client
}

func NewServiceContext(ctx context.Context, c *config.Config) (*ServiceContext, error) {
	// 打开数据库
	store, err := model.Open(ctx, c.Paths.Database)
	if err != nil {
		return nil, err
	}

	// 创建SOCKS5代理
	transportProxy, err := newTransportProxy(c.Sock5Proxy)
	if err != nil {
		store.Close()
		return nil, err
	}

	svcCtx := &ServiceContext{
		Config:         c,
		Store:          store,
		TransportProxy: transportProxy,
		RunModel:       model.NewRunModel(store),
		LabelModel:     model.NewLabelModel(store),
		DocumentModel:  model.NewDocumentModel(store),
		LLMClient:      llm.NewClient(&c.LLM, svcHTTPClient(transportProxy)),
	}
	return svcCtx, nil
}

func newTransportProxy(c config.Sock5Proxy) (*http.Transport, error) {
	if !c.Enable {
		return nil, nil
	}

	socks5Proxy := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
	}
	return &http.Transport{
		Dial:            dialer.Dial,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}, nil
}

func svcHTTPClient(transport *http.Transport) *http.Client {
	if transport == nil {
		return nil
	}
	return &http.Client{Transport: transport}
}

// HTTPClient 走代理的 HTTP 客户端，未启用代理时返回 nil
func (svcCtx *ServiceContext) HTTPClient() *http.Client {
	return svcHTTPClient(svcCtx.TransportProxy)
}

// NewDriver 按配置创建分类驱动，maxRetries 区分分类子命令与定时重试
func (svcCtx *ServiceContext) NewDriver(maxRetries int) *classifier.Driver {
	c := svcCtx.Config
	return classifier.NewDriver(svcCtx.LLMClient, classifier.Options{
		Workers:     c.Classify.Workers,
		MaxRetries:  maxRetries,
		RetryErrors: c.Classify.RetryErrors,
		MaxTokens:   c.Classify.MaxNewTokens,
		CallTimeout: c.LLM.CallTimeout(),
	})
}

// Tasks 配置中启用的分类任务
func (svcCtx *ServiceContext) Tasks() ([]classifier.Task, error) {
	tasks := make([]classifier.Task, 0, len(svcCtx.Config.Classify.Tasks))
	for _, name := range svcCtx.Config.Classify.Tasks {
		task, err := classifier.TaskByName(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.Store.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
