// Package browser is the session handle every other stage drives: one
// capability interface, a chromedp-backed implementation and a scriptable
// fake for tests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// By selects the query language of a Selector
type By int

const (
	ByCSS By = iota
	ByXPath
)

// Selector addresses the Index-th element matching Query. It is a plain
// value so a caller can re-locate an element after the DOM has changed
// instead of holding a node reference across waits.
type Selector struct {
	Query string
	By    By
	Index int
}

// CSS builds a selector for the first element matching a CSS query
func CSS(query string) Selector {
	return Selector{Query: query, By: ByCSS}
}

// XPath builds a selector for the first element matching an XPath expression
func XPath(expr string) Selector {
	return Selector{Query: expr, By: ByXPath}
}

// Nth returns a copy addressing the i-th match
func (s Selector) Nth(i int) Selector {
	s.Index = i
	return s
}

func (s Selector) String() string {
	if s.Index == 0 {
		return s.Query
	}
	return fmt.Sprintf("%s[%d]", s.Query, s.Index)
}

// ErrNoMatch is returned when a selector's Index has no matching element
var ErrNoMatch = errors.New("no element matches selector")

// Page is the set of primitives the harvest pipeline needs from a browser
// tab. Every blocking call is bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	Count(ctx context.Context, sel Selector) (int, error)
	WaitVisible(ctx context.Context, sel Selector) error

	Click(ctx context.Context, sel Selector) error
	// ForceClick invokes the element's click() from script, bypassing hit testing
	ForceClick(ctx context.Context, sel Selector) error
	MouseClick(ctx context.Context, x, y float64) error
	SendKeys(ctx context.Context, sel Selector, text string) error

	ScrollIntoView(ctx context.Context, sel Selector) error
	ScrollOffset(ctx context.Context, sel Selector) (float64, error)
	// ScrollByViewport scrolls sel by pages times its own visible height;
	// negative values scroll up
	ScrollByViewport(ctx context.Context, sel Selector, pages float64) error

	Attribute(ctx context.Context, sel Selector, name string) (string, bool, error)
	Evaluate(ctx context.Context, expression string, out interface{}) error

	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// TabOpener opens an additional tab sharing the session's cookies
type TabOpener interface {
	OpenTab(ctx context.Context) (Page, func(), error)
}

// CookieSource exposes the session cookies for a URL
type CookieSource interface {
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
}

// XPathLiteral quotes s for use inside an XPath expression, including
// strings containing both quote kinds.
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}
