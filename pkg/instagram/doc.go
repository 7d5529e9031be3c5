// Package instagram holds the web addresses the browser pipeline visits and
// an HTTP client for pulling media files from the CDN.
//
// The client sends the same browser-like headers the session uses, can
// carry the session's cookies, and maps HTTP statuses onto the typed errors
// of pkg/errors so callers can decide what to retry:
//
//	client := instagram.NewClient(2*time.Minute, log)
//	client.SetUserAgent(cfg.Browser.UserAgent)
//	client.SetCookies(cookies)
//
//	body, size, err := client.OpenMedia(ctx, src)
//	if err != nil {
//	    if errs.IsRetryable(errs.TypeOf(err)) {
//	        // network blip, 429 or 5xx
//	    }
//	}
//	defer body.Close()
package instagram
