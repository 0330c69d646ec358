package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func readAll(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("couldn't read response body: %w", err)
	}
	return body, nil
}

// fetch GETs a URL with browser-ish headers and returns the body.
// extraHeaders come as alternating key, value pairs.
func fetch(ctx context.Context, client *http.Client, url string, extraHeaders ...string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create request for %v: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for i := 0; i+1 < len(extraHeaders); i += 2 {
		req.Header.Set(extraHeaders[i], extraHeaders[i+1])
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't GET %v: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad GET response for %v: %v", url, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("couldn't read response body of %v: %w", url, err)
	}
	return body, nil
}

// fetchJSON GETs a URL and hands the body to gjson.
func fetchJSON(ctx context.Context, client *http.Client, url string, extraHeaders ...string) (gjson.Result, error) {
	body, err := fetch(ctx, client, url, extraHeaders...)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(body), nil
}

// fetchDoc GETs a URL and loads the HTML into goquery.
func fetchDoc(ctx context.Context, client *http.Client, url string, extraHeaders ...string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create request for %v: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for i := 0; i+1 < len(extraHeaders); i += 2 {
		req.Header.Set(extraHeaders[i], extraHeaders[i+1])
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't GET %v: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad GET response for %v: %v", url, res.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("couldn't load the HTML of %v in goquery: %w", url, err)
	}
	return doc, nil
}
