package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/curaious/warden/pkg/execution"
)

type Options struct {
	// OpTimeout bounds every individual browser operation.
	OpTimeout time.Duration
	// Headless is the default in production; tests may disable it.
	Headless bool
}

// Executor drives a headless Chrome instance. A fresh browser context is
// created per request so actions from different users never share state.
type Executor struct {
	opTimeout time.Duration
	allocOpts []chromedp.ExecAllocatorOption
}

func NewExecutor(opts Options) *Executor {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	return &Executor{opTimeout: timeout, allocOpts: allocOpts}
}

func (e *Executor) Execute(ctx context.Context, req *execution.Request) *execution.Result {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(opCtx, e.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	slog.DebugContext(ctx, "browser operation", "operation", req.Operation)

	switch req.Operation {
	case "navigate":
		return e.navigate(browserCtx, req)
	case "click":
		return e.click(browserCtx, req)
	case "fill":
		return e.fill(browserCtx, req)
	case "screenshot":
		return e.screenshot(browserCtx, req)
	case "getText":
		return e.getText(browserCtx, req)
	default:
		return execution.Fail(req.Operation, fmt.Sprintf("unknown browser operation %q", req.Operation))
	}
}

func (e *Executor) navigate(ctx context.Context, req *execution.Request) *execution.Result {
	target, _ := req.Params["url"].(string)
	if err := validateURL(target); err != nil {
		return execution.Fail(req.Operation, err.Error())
	}
	var title string
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.Title(&title),
	)
	if err != nil {
		return execution.Fail(req.Operation, fmt.Sprintf("navigate %s: %v", target, err))
	}
	return execution.OK(req.Operation, title)
}

func (e *Executor) click(ctx context.Context, req *execution.Request) *execution.Result {
	target, _ := req.Params["url"].(string)
	selector, _ := req.Params["selector"].(string)
	if selector == "" {
		return execution.Fail(req.Operation, "missing required param: selector")
	}
	if err := validateURL(target); err != nil {
		return execution.Fail(req.Operation, err.Error())
	}
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
	if err != nil {
		return execution.Fail(req.Operation, fmt.Sprintf("click %q: %v", selector, err))
	}
	return execution.OK(req.Operation, "clicked")
}

func (e *Executor) fill(ctx context.Context, req *execution.Request) *execution.Result {
	target, _ := req.Params["url"].(string)
	selector, _ := req.Params["selector"].(string)
	value, _ := req.Params["value"].(string)
	if selector == "" {
		return execution.Fail(req.Operation, "missing required param: selector")
	}
	if err := validateURL(target); err != nil {
		return execution.Fail(req.Operation, err.Error())
	}
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(selector),
		chromedp.SendKeys(selector, value),
	)
	if err != nil {
		return execution.Fail(req.Operation, fmt.Sprintf("fill %q: %v", selector, err))
	}
	return execution.OK(req.Operation, "filled")
}

func (e *Executor) screenshot(ctx context.Context, req *execution.Request) *execution.Result {
	target, _ := req.Params["url"].(string)
	if err := validateURL(target); err != nil {
		return execution.Fail(req.Operation, err.Error())
	}
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.FullScreenshot(&buf, 80),
	)
	if err != nil {
		return execution.Fail(req.Operation, fmt.Sprintf("screenshot %s: %v", target, err))
	}
	return execution.OK(req.Operation, base64.StdEncoding.EncodeToString(buf))
}

func (e *Executor) getText(ctx context.Context, req *execution.Request) *execution.Result {
	target, _ := req.Params["url"].(string)
	selector, _ := req.Params["selector"].(string)
	if selector == "" {
		selector = "body"
	}
	if err := validateURL(target); err != nil {
		return execution.Fail(req.Operation, err.Error())
	}
	var text string
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.Text(selector, &text),
	)
	if err != nil {
		return execution.Fail(req.Operation, fmt.Sprintf("get text %q: %v", selector, err))
	}
	return execution.OK(req.Operation, text)
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing required param: url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return nil
}
