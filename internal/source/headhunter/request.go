package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// StatusError is returned for any non-200 answer from the API.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hh api %s: %s", e.URL, e.Status)
}

// resultPage is one page of a paginated listing.
type resultPage struct {
	Items   []any `json:"items"`
	Found   int   `json:"found"`
	Pages   int   `json:"pages"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// collect walks a paginated listing and concatenates the items of every
// page. maxPages caps the walk; zero means no cap.
func (c *Client) collect(ctx context.Context, endpoint string, q url.Values, maxPages int) ([]any, error) {
	var items []any
	query := cloneValues(q)

	for page := 0; ; page++ {
		if page > 0 {
			query.Set("page", strconv.Itoa(page))
		}

		var res resultPage
		if err := c.fetch(ctx, endpoint, query, &res); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		items = append(items, res.Items...)

		if page == 0 {
			c.logger.Debug("listing size",
				zap.Int("found", res.Found),
				zap.Int("pages", res.Pages),
				zap.Int("per_page", res.PerPage),
			)
		}

		last := res.Page >= res.Pages-1
		if last {
			return items, nil
		}
		if maxPages > 0 && page+1 >= maxPages {
			c.logger.Debug("stopping at page cap", zap.Int("max_pages", maxPages), zap.Int("pages", res.Pages))
			return items, nil
		}
	}
}

// fetch performs an authenticated GET and decodes the JSON answer into target.
func (c *Client) fetch(ctx context.Context, endpoint string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if len(q) > 0 {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("hh request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: req.URL.Path}
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("open gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
