package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"igreels/pkg/logger"
)

// Capture is what was written for one diagnostic snapshot
type Capture struct {
	Screenshot string
	HTML       string
	URL        string
	Page       PageSummary
}

// PageSummary is a coarse reading of the captured DOM
type PageSummary struct {
	Title     string
	Dialogs   int
	Videos    int
	LoginForm bool
}

// Summarize parses html and counts the elements that usually explain a
// failed harvest
func Summarize(html string) (PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageSummary{}, err
	}
	return PageSummary{
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Dialogs:   doc.Find("div[role='dialog']").Length(),
		Videos:    doc.Find("video").Length(),
		LoginForm: doc.Find("input[name='username']").Length() > 0 && doc.Find("input[name='password']").Length() > 0,
	}, nil
}

// CaptureDiagnostics writes a screenshot and the page HTML under dir using
// name as the file stem. Failures are logged and never returned; a partial
// capture is still reported.
func CaptureDiagnostics(ctx context.Context, page Page, dir, name string, log logger.Logger) Capture {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var capture Capture
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create diagnostics directory")
		return capture
	}
	stem := filepath.Join(dir, name)

	if loc, err := page.Location(ctx); err == nil {
		capture.URL = loc
	}

	if buf, err := page.Screenshot(ctx); err != nil {
		log.WithError(err).Warn("Failed to capture screenshot")
	} else if err := os.WriteFile(stem+".png", buf, 0644); err != nil {
		log.WithError(err).Warn("Failed to write screenshot")
	} else {
		capture.Screenshot = stem + ".png"
	}

	if html, err := page.HTML(ctx); err != nil {
		log.WithError(err).Warn("Failed to capture page HTML")
	} else if err := os.WriteFile(stem+".html", []byte(html), 0640); err != nil {
		log.WithError(err).Warn("Failed to write page HTML")
	} else {
		capture.HTML = stem + ".html"
		if summary, err := Summarize(html); err == nil {
			capture.Page = summary
		}
	}

	log.InfoWithFields("Diagnostics captured", map[string]interface{}{
		"screenshot": capture.Screenshot,
		"html":       capture.HTML,
		"url":        capture.URL,
		"title":      capture.Page.Title,
		"dialogs":    capture.Page.Dialogs,
		"videos":     capture.Page.Videos,
		"login_form": capture.Page.LoginForm,
	})
	return capture
}

// DiagnosticName builds a timestamped file stem such as error_20260102_150405
func DiagnosticName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, at.Format("20060102_150405"))
}
