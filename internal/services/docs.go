package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

const (
	docHitsPerSite  = 3
	docExcerptLimit = 300
	docTextLimit    = 4000
)

// docSiteSpec describes how to search one documentation site and where
// its result markup keeps the title and excerpt.
type docSiteSpec struct {
	base      string
	path      string // fmt template taking the escaped query
	container string
	title     string
	excerpt   string
}

var docSiteSpecs = map[string]docSiteSpec{
	"mdn": {
		base:      "https://developer.mozilla.org",
		path:      "/en-US/search?q=%s",
		container: ".result",
		title:     "h3 a",
		excerpt:   "p",
	},
	"godocs": {
		base:      "https://pkg.go.dev",
		path:      "/search?q=%s",
		container: ".SearchSnippet",
		title:     "h2 a",
		excerpt:   ".SearchSnippet-synopsis",
	},
	"stackoverflow": {
		base:      "https://stackoverflow.com",
		path:      "/search?q=%s",
		container: ".s-post-summary",
		title:     "h3 a",
		excerpt:   ".s-post-summary--content-excerpt",
	},
}

// DocsClient searches documentation sites and condenses the top hits
// into a text block for the gathering stage. Any code sample on the
// results page rides along fenced, so reports can surface it.
type DocsClient struct {
	httpClient *http.Client
	baseURLs   map[string]string
	logger     *zap.Logger
}

// NewDocsClient builds a client for the known documentation sites. A nil
// httpClient gets a 10-second-timeout default.
func NewDocsClient(httpClient *http.Client, logger *zap.Logger) *DocsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURLs := make(map[string]string, len(docSiteSpecs))
	for name, spec := range docSiteSpecs {
		baseURLs[name] = spec.base
	}
	return &DocsClient{
		httpClient: httpClient,
		baseURLs:   baseURLs,
		logger:     logger,
	}
}

// Fetch satisfies the knowledge pipeline's documentation dependency. It
// errors on unknown sites, failed requests, and empty result pages so the
// gather stage can mark the source degraded.
func (c *DocsClient) Fetch(ctx context.Context, query, site string) (string, error) {
	spec, ok := docSiteSpecs[site]
	if !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown documentation site %q", site))
	}

	endpoint := c.baseURLs[site] + fmt.Sprintf(spec.path, url.QueryEscape(query))
	body, err := httpGet(ctx, c.httpClient, endpoint, "text/html")
	if err != nil {
		return "", apperrors.NewRetryableAPIError(fmt.Sprintf("%s search failed", site), err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return "", apperrors.NewAPIError(fmt.Sprintf("parse %s results", site), err)
	}

	var b strings.Builder
	doc.Find(spec.container).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		title := collapseSpace(sel.Find(spec.title).First().Text())
		if title == "" {
			return true
		}
		excerpt := collapseSpace(sel.Find(spec.excerpt).First().Text())
		if len(excerpt) > docExcerptLimit {
			excerpt = excerpt[:docExcerptLimit] + "..."
		}
		if excerpt != "" {
			fmt.Fprintf(&b, "%s: %s\n", title, excerpt)
		} else {
			fmt.Fprintf(&b, "%s\n", title)
		}
		return i+1 < docHitsPerSite
	})

	if sample := strings.TrimSpace(doc.Find("pre").First().Text()); sample != "" {
		fmt.Fprintf(&b, "```\n%s\n```\n", sample)
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", apperrors.NewAPIError(fmt.Sprintf("no documentation found on %s", site), nil)
	}
	if len(out) > docTextLimit {
		out = out[:docTextLimit]
	}

	c.logger.Debug("documentation fetched",
		zap.String("site", site),
		zap.Int("length", len(out)),
	)
	return out, nil
}
