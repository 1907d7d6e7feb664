package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

const (
	defaultAPIBaseURL  = "https://api.duckduckgo.com"
	defaultHTMLBaseURL = "https://html.duckduckgo.com"

	userAgent    = "Mozilla/5.0 (compatible; ChimpGPT/1.0)"
	maxBodyBytes = 256 << 10
	snippetLimit = 200
)

// SearchClient queries DuckDuckGo: the Instant Answer JSON API first
// (free, no key), then the HTML endpoint when the API returns no usable
// results.
type SearchClient struct {
	httpClient  *http.Client
	apiBaseURL  string
	htmlBaseURL string
	logger      *zap.Logger
}

// NewSearchClient builds a client against the public DuckDuckGo
// endpoints. A nil httpClient gets a 10-second-timeout default.
func NewSearchClient(httpClient *http.Client, logger *zap.Logger) *SearchClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SearchClient{
		httpClient:  httpClient,
		apiBaseURL:  defaultAPIBaseURL,
		htmlBaseURL: defaultHTMLBaseURL,
		logger:      logger,
	}
}

// instantAnswer is the subset of the Instant Answer API payload we use.
// Group nodes inside RelatedTopics have no Text and are skipped.
type instantAnswer struct {
	Answer        string `json:"Answer"`
	AbstractText  string `json:"AbstractText"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search satisfies the knowledge pipeline's search dependency. It returns
// an error only when neither endpoint yields anything; a missing instant
// answer with usable results (or the reverse) is still a healthy response.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) (*knowledge.SearchData, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	data := &knowledge.SearchData{}
	if err := c.instantAnswer(ctx, query, maxResults, data); err != nil {
		c.logger.Debug("instant answer lookup failed, trying HTML results",
			zap.String("query", query),
			zap.Error(err),
		)
	}

	if len(data.Results) == 0 {
		results, err := c.htmlResults(ctx, query, maxResults)
		if err != nil && data.InstantAnswer == "" && data.Abstract == "" {
			return nil, apperrors.NewRetryableAPIError("web search failed", err)
		}
		data.Results = results
	}

	if data.InstantAnswer == "" && data.Abstract == "" && len(data.Results) == 0 {
		return nil, apperrors.NewAPIError(fmt.Sprintf("no results for %q", query), nil)
	}
	return data, nil
}

func (c *SearchClient) instantAnswer(ctx context.Context, query string, maxResults int, data *knowledge.SearchData) error {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		c.apiBaseURL, url.QueryEscape(query))

	body, err := c.get(ctx, endpoint, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()

	var ia instantAnswer
	if err := json.NewDecoder(body).Decode(&ia); err != nil {
		return fmt.Errorf("decode instant answer: %w", err)
	}

	data.InstantAnswer = strings.TrimSpace(ia.Answer)
	data.Abstract = strings.TrimSpace(ia.AbstractText)
	for _, topic := range ia.RelatedTopics {
		if topic.Text == "" || len(data.Results) >= maxResults {
			continue
		}
		data.Results = append(data.Results, knowledge.SearchResult{
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return nil
}

// htmlResults scrapes the HTML search page. The result markup puts the
// link in a.result__a and the teaser in .result__snippet.
func (c *SearchClient) htmlResults(ctx context.Context, query string, maxResults int) ([]knowledge.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/html/?q=%s", c.htmlBaseURL, url.QueryEscape(query))

	body, err := c.get(ctx, endpoint, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []knowledge.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}

		href, _ := link.Attr("href")
		snippet := collapseSpace(sel.Find(".result__snippet").First().Text())
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit] + "..."
		}

		results = append(results, knowledge.SearchResult{
			Title:   title,
			URL:     unwrapRedirect(href),
			Snippet: snippet,
		})
		return len(results) < maxResults
	})
	return results, nil
}

func (c *SearchClient) get(ctx context.Context, endpoint, accept string) (io.ReadCloser, error) {
	return httpGet(ctx, c.httpClient, endpoint, accept)
}

// httpGet performs a browser-shaped GET and hands back the body on 200.
func httpGet(ctx context.Context, client *http.Client, endpoint, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, resp.Request.URL.Host)
	}
	return resp.Body, nil
}

// unwrapRedirect extracts the destination from DuckDuckGo's redirect
// links, which wrap the real URL in a uddg query parameter.
func unwrapRedirect(href string) string {
	if href == "" {
		return ""
	}
	idx := strings.Index(href, "uddg=")
	if idx < 0 {
		if strings.HasPrefix(href, "/") {
			return ""
		}
		return href
	}
	wrapped := href[idx+len("uddg="):]
	if amp := strings.IndexByte(wrapped, '&'); amp >= 0 {
		wrapped = wrapped[:amp]
	}
	decoded, err := url.QueryUnescape(wrapped)
	if err != nil {
		return href
	}
	return decoded
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
