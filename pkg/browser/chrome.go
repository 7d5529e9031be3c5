package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"igreels/pkg/logger"
)

// ChromeSession drives one Chrome tab through chromedp
type ChromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
}

// newChromeSession wraps a chromedp tab context
func newChromeSession(tabCtx context.Context, cancel context.CancelFunc, log logger.Logger) *ChromeSession {
	return &ChromeSession{ctx: tabCtx, cancel: cancel, logger: log}
}

// combineContext derives from the tab context, which carries the CDP
// target, and cancels when the caller's ctx is done.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	if deadline, ok := opCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// runBounded runs fn, cancelling the long-lived context behind it through
// cancel if ctx ends first. ctx's error wins in that case.
func runBounded(ctx context.Context, cancel context.CancelFunc, fn func() error) error {
	stop := context.AfterFunc(ctx, cancel)
	err := fn()
	if !stop() {
		return ctx.Err()
	}
	return err
}

func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func queryOption(by By) chromedp.QueryOption {
	if by == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// resolve returns the node addressed by sel inside a running action
func resolve(ctx context.Context, sel Selector) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := chromedp.Nodes(sel.Query, &nodes, queryOption(sel.By), chromedp.AtLeast(0)).Do(ctx); err != nil {
		return nil, err
	}
	if sel.Index < 0 || sel.Index >= len(nodes) {
		return nil, fmt.Errorf("%w: %s (%d matches)", ErrNoMatch, sel, len(nodes))
	}
	return nodes[sel.Index], nil
}

// onNode resolves sel then runs fn against the node
func (s *ChromeSession) onNode(ctx context.Context, sel Selector, fn func(ctx context.Context, node *cdp.Node) error) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := resolve(ctx, sel)
		if err != nil {
			return err
		}
		return fn(ctx, node)
	}))
}

// callOnNode runs fn with this bound to node. fn must return a value; res
// receives it when non-nil.
func callOnNode(ctx context.Context, node *cdp.Node, fn string, res interface{}, args ...interface{}) error {
	obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	if res == nil {
		var ignored bool
		res = &ignored
	}
	return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}, args...).Do(ctx)
}

func nodeIDs(node *cdp.Node) []cdp.NodeID {
	return []cdp.NodeID{node.NodeID}
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *ChromeSession) Count(ctx context.Context, sel Selector) (int, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, queryOption(sel.By), chromedp.AtLeast(0)))
	return len(nodes), err
}

// WaitVisible polls until the addressed element exists and is visible
func (s *ChromeSession) WaitVisible(ctx context.Context, sel Selector) error {
	if sel.Index == 0 {
		by := chromedp.ByQuery
		if sel.By == ByXPath {
			by = chromedp.BySearch
		}
		return s.run(ctx, chromedp.WaitVisible(sel.Query, by))
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
			return chromedp.WaitVisible(nodeIDs(node), chromedp.ByNodeID).Do(ctx)
		})
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ChromeSession) Click(ctx context.Context, sel Selector) error {
	return s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return chromedp.MouseClickNode(node).Do(ctx)
	})
}

func (s *ChromeSession) ForceClick(ctx context.Context, sel Selector) error {
	return s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return callOnNode(ctx, node, `function() { this.click(); return true; }`, nil)
	})
}

func (s *ChromeSession) MouseClick(ctx context.Context, x, y float64) error {
	return s.run(ctx, chromedp.MouseClickXY(x, y))
}

func (s *ChromeSession) SendKeys(ctx context.Context, sel Selector, text string) error {
	return s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return chromedp.SendKeys(nodeIDs(node), text, chromedp.ByNodeID).Do(ctx)
	})
}

func (s *ChromeSession) ScrollIntoView(ctx context.Context, sel Selector) error {
	return s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return chromedp.ScrollIntoView(nodeIDs(node), chromedp.ByNodeID).Do(ctx)
	})
}

func (s *ChromeSession) ScrollOffset(ctx context.Context, sel Selector) (float64, error) {
	var offset float64
	err := s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return callOnNode(ctx, node, `function() { return this.scrollTop; }`, &offset)
	})
	return offset, err
}

func (s *ChromeSession) ScrollByViewport(ctx context.Context, sel Selector, pages float64) error {
	return s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return callOnNode(ctx, node,
			`function(pages) { this.scrollTo(0, this.scrollTop + this.clientHeight * pages); return true; }`, nil, pages)
	})
}

func (s *ChromeSession) Attribute(ctx context.Context, sel Selector, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.onNode(ctx, sel, func(ctx context.Context, node *cdp.Node) error {
		return chromedp.AttributeValue(nodeIDs(node), name, &value, &ok, chromedp.ByNodeID).Do(ctx)
	})
	return value, ok, err
}

func (s *ChromeSession) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expression, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (s *ChromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// OpenTab opens a new tab in the same browser. The returned release func
// closes the tab.
func (s *ChromeSession) OpenTab(ctx context.Context) (Page, func(), error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	if err := runBounded(ctx, cancel, func() error { return chromedp.Run(tabCtx) }); err != nil {
		cancel()
		return nil, func() {}, fmt.Errorf("failed to open tab: %w", err)
	}
	tab := newChromeSession(tabCtx, cancel, s.logger.WithField("tab", "download"))
	return tab, cancel, nil
}

// Cookies returns the browser cookies that apply to url
func (s *ChromeSession) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

// Close closes the tab
func (s *ChromeSession) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
