package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sourceFromMarkup looks for a playable source inside the viewer overlay of
// a serialized page. Blob sources are skipped in favour of a later
// <source> child.
func sourceFromMarkup(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("div[role='dialog'] video").EachWithBreak(func(_ int, video *goquery.Selection) bool {
		if src := playable(video.AttrOr("src", "")); src != "" {
			found = src
			return false
		}
		video.Find("source").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = playable(s.AttrOr("src", ""))
			return found == ""
		})
		return found == ""
	})
	return found
}

func playable(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "blob:") {
		return ""
	}
	return src
}
