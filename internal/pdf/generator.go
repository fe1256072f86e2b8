package pdf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	defaultTimeout = 45 * time.Second
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// Generator 把 HTML 打印为 PDF。
type Generator interface {
	FromHTML(ctx context.Context, html string) ([]byte, error)
}

// Chromium 使用 go-rod 启动无头浏览器打印页面。
type Chromium struct {
	Timeout time.Duration
}

// FromHTML 在无头浏览器中渲染 HTML 并返回 A4 PDF 字节。
func (c Chromium) FromHTML(ctx context.Context, htmlContent string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().Context(ctx).ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(timeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	// 头像与项目图片是外链，等网络空闲后再打印。
	page.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        inches(a4WidthInches),
		PaperHeight:       inches(a4HeightInches),
		MarginTop:         inches(0),
		MarginBottom:      inches(0),
		MarginLeft:        inches(0),
		MarginRight:       inches(0),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func inches(v float64) *float64 { return &v }
