package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FakePage is an in-memory Page for tests. The DOM is modelled as a match
// count per query plus attribute and scroll-offset tables; hooks let a test
// mutate that model when the code under test clicks, scrolls or navigates.
// Hooks run without the internal lock held, so they may call any method.
type FakePage struct {
	mu sync.Mutex

	url       string
	counts    map[string]int
	attrs     map[string]string
	offsets   map[string]float64
	viewports map[string]float64
	clickErr  map[string]error
	forceErr  map[string]error
	navErr    map[string]error
	countErr  map[string]error
	evals     map[string]interface{}
	typed     map[string]string
	calls     []string

	OnNavigate   func(p *FakePage, url string)
	OnClick      func(p *FakePage, sel Selector)
	OnScroll     func(p *FakePage, sel Selector, offset float64)
	OnMouseClick func(p *FakePage, x, y float64)
	OnEvaluate   func(p *FakePage, expression string) (interface{}, error)
	NewTab       func() *FakePage

	CookieJar      []*http.Cookie
	ScreenshotData []byte
	Document       string
	PollInterval   time.Duration
}

// NewFakePage creates an empty page at about:blank
func NewFakePage() *FakePage {
	return &FakePage{
		url:            "about:blank",
		counts:         make(map[string]int),
		attrs:          make(map[string]string),
		offsets:        make(map[string]float64),
		viewports:      make(map[string]float64),
		clickErr:       make(map[string]error),
		forceErr:       make(map[string]error),
		navErr:         make(map[string]error),
		countErr:       make(map[string]error),
		evals:          make(map[string]interface{}),
		typed:          make(map[string]string),
		ScreenshotData: []byte("\x89PNG fake"),
		Document:       "<html><body></body></html>",
		PollInterval:   2 * time.Millisecond,
	}
}

// SetCount sets how many elements match query
func (p *FakePage) SetCount(query string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		delete(p.counts, query)
		return
	}
	p.counts[query] = n
}

// AddCount adjusts the match count of query by delta
func (p *FakePage) AddCount(query string, delta int) {
	p.mu.Lock()
	n := p.counts[query] + delta
	p.mu.Unlock()
	p.SetCount(query, n)
}

// CountOf returns the current match count of query
func (p *FakePage) CountOf(query string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[query]
}

func attrKey(sel Selector, name string) string {
	return fmt.Sprintf("%s|%d|%s", sel.Query, sel.Index, name)
}

// SetAttr sets attribute name on the element addressed by sel
func (p *FakePage) SetAttr(sel Selector, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs[attrKey(sel, name)] = value
}

// SetScroll configures a scroll container's offset and viewport height
func (p *FakePage) SetScroll(query string, offset, viewport float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offsets[query] = offset
	p.viewports[query] = viewport
}

// FailClick makes native clicks on query fail with err; nil clears it
func (p *FakePage) FailClick(query string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickErr[query] = err
}

// FailForceClick makes forced clicks on query fail with err; nil clears it
func (p *FakePage) FailForceClick(query string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceErr[query] = err
}

// FailCount makes the next Count for query return err
func (p *FakePage) FailCount(query string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countErr[query] = err
}

// FailNavigate makes navigation to url fail with err; nil clears it
func (p *FakePage) FailNavigate(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErr[url] = err
}

// SetEvaluate fixes the result returned for expression
func (p *FakePage) SetEvaluate(expression string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals[expression] = value
}

// Typed returns the text sent to the element matching query
func (p *FakePage) Typed(query string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[query]
}

// Calls returns the recorded call log, e.g. "click:div[role='button'][2]"
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount counts recorded calls starting with prefix
func (p *FakePage) CallCount(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (p *FakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// present reports whether sel addresses an existing element; callers hold mu
func (p *FakePage) present(sel Selector) bool {
	return sel.Index >= 0 && sel.Index < p.counts[sel.Query]
}

func (p *FakePage) noMatch(sel Selector) error {
	return fmt.Errorf("%w: %s (%d matches)", ErrNoMatch, sel, p.counts[sel.Query])
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("navigate:%s", url)
	if err := p.navErr[url]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.url = url
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

// SetURL changes the current location without recording a navigation
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Count(ctx context.Context, sel Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.countErr[sel.Query]; ok {
		delete(p.countErr, sel.Query)
		return 0, err
	}
	return p.counts[sel.Query], nil
}

// WaitVisible blocks until sel is present or ctx is done
func (p *FakePage) WaitVisible(ctx context.Context, sel Selector) error {
	p.mu.Lock()
	p.record("wait:%s", sel)
	p.mu.Unlock()

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		ok := p.present(sel)
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *FakePage) click(ctx context.Context, sel Selector, kind string, failures map[string]error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("%s:%s", kind, sel)
	if !p.present(sel) {
		err := p.noMatch(sel)
		p.mu.Unlock()
		return err
	}
	if err := failures[sel.Query]; err != nil {
		p.mu.Unlock()
		return err
	}
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, sel)
	}
	return nil
}

func (p *FakePage) Click(ctx context.Context, sel Selector) error {
	return p.click(ctx, sel, "click", p.clickErr)
}

func (p *FakePage) ForceClick(ctx context.Context, sel Selector) error {
	return p.click(ctx, sel, "force-click", p.forceErr)
}

func (p *FakePage) MouseClick(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("mouse:%g,%g", x, y)
	hook := p.OnMouseClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, x, y)
	}
	return nil
}

func (p *FakePage) SendKeys(ctx context.Context, sel Selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("keys:%s", sel)
	if !p.present(sel) {
		return p.noMatch(sel)
	}
	p.typed[sel.Query] += text
	return nil
}

func (p *FakePage) ScrollIntoView(ctx context.Context, sel Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scroll-into-view:%s", sel)
	if !p.present(sel) {
		return p.noMatch(sel)
	}
	return nil
}

func (p *FakePage) ScrollOffset(ctx context.Context, sel Selector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present(sel) {
		return 0, p.noMatch(sel)
	}
	return p.offsets[sel.Query], nil
}

// ScrollByViewport moves the offset by pages viewports, clamped at zero
func (p *FakePage) ScrollByViewport(ctx context.Context, sel Selector, pages float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("scroll:%s:%g", sel, pages)
	if !p.present(sel) {
		err := p.noMatch(sel)
		p.mu.Unlock()
		return err
	}
	offset := p.offsets[sel.Query] + pages*p.viewports[sel.Query]
	if offset < 0 {
		offset = 0
	}
	p.offsets[sel.Query] = offset
	hook := p.OnScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p, sel, offset)
	}
	return nil
}

func (p *FakePage) Attribute(ctx context.Context, sel Selector, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present(sel) {
		return "", false, p.noMatch(sel)
	}
	v, ok := p.attrs[attrKey(sel, name)]
	return v, ok, nil
}

// Evaluate answers from OnEvaluate, then from SetEvaluate results. The value
// is copied into out through JSON.
func (p *FakePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("eval")
	hook := p.OnEvaluate
	value, ok := p.evals[expression]
	p.mu.Unlock()

	if hook != nil {
		v, err := hook(p, expression)
		if err != nil {
			return err
		}
		value, ok = v, true
	}
	if !ok {
		return errors.New("fake: no result for expression")
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.ScreenshotData, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Document, nil
}

// OpenTab returns the page built by NewTab
func (p *FakePage) OpenTab(ctx context.Context) (Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, func() {}, err
	}
	p.mu.Lock()
	p.record("open-tab")
	factory := p.NewTab
	p.mu.Unlock()

	if factory == nil {
		return nil, func() {}, errors.New("fake: tabs not supported")
	}
	tab := factory()
	return tab, func() {
		p.mu.Lock()
		p.record("close-tab")
		p.mu.Unlock()
	}, nil
}

func (p *FakePage) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.CookieJar, nil
}
