package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"valuations/internal/config"
	"valuations/internal/metrics"
)

// PDFRenderer 将 HTML 文档打印为 PDF。
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// ErrRendererClosed 表示渲染器已关闭。
var ErrRendererClosed = errors.New("pdf renderer closed")

// ChromePDFRenderer 通过 chromedp 驱动无头 Chromium：共享一个浏览器进程，每次渲染使用独立标签页。
// 同时进行的渲染数量受 workers 限制，超出的请求排队等待。
type ChromePDFRenderer struct {
	execPath string
	timeout  time.Duration
	slots    chan struct{}

	mu            sync.Mutex
	closed        bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewChromePDFRenderer(cfg config.Config) *ChromePDFRenderer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := cfg.Report.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromePDFRenderer{
		execPath: cfg.Report.ChromePath,
		timeout:  timeout,
		slots:    make(chan struct{}, workers),
	}
}

// browser 懒启动浏览器；启动失败时下次调用会重试。
func (r *ChromePDFRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	// 浏览器已退出：先释放旧的分配器，再重新启动
	r.releaseBrowser()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// 空操作 Run 会真正拉起浏览器进程
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chromium: %w", err)
	}
	r.allocCancel, r.browserCtx, r.browserCancel = allocCancel, browserCtx, browserCancel
	log.WithField("exec_path", r.execPath).Info("headless chromium started")
	return browserCtx, nil
}

// RenderPDF 在新标签页加载 HTML，等待网络空闲后打印为 A4 PDF。
func (r *ChromePDFRenderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.slots }()

	start := time.Now()
	browserCtx, err := r.browser()
	if err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	idle := make(chan struct{})
	var (
		idleOnce sync.Once
		seenInit bool
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		switch e.Name {
		case "init":
			seenInit = true
		case "networkIdle":
			if seenInit {
				idleOnce.Do(func() { close(idle) })
			}
		}
	})

	var pdf []byte
	err = chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate("data:text/html;charset=utf-8;base64,"+base64.StdEncoding.EncodeToString(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			select {
			case <-idle:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			b, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			pdf = b
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	metrics.PDFRenderDuration.Observe(time.Since(start).Seconds())
	return pdf, nil
}

// Close 关闭浏览器进程。
func (r *ChromePDFRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.releaseBrowser()
}

// releaseBrowser 取消当前浏览器与分配器上下文；调用方需持有 mu。
func (r *ChromePDFRenderer) releaseBrowser() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel, r.allocCancel = nil, nil, nil
}
