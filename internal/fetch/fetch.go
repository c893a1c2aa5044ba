// Package fetch performs conditional HTTP polling: validators in,
// validators out, body only on 200.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

const acceptHeader = "application/json, application/xml, application/rss+xml, text/xml, */*"

// Client wraps an http.Client with the polling defaults: 5s connect,
// 15s for the full exchange on top of that.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(userAgent string) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   20 * time.Second,
		},
		userAgent: userAgent,
	}
}

// Result is one fetch outcome. Body is nil unless the status was 200.
type Result struct {
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
	CacheControl string
	RetryAfter   string
	ElapsedMS    int
}

// Get performs a conditional GET. The stored validators ride along as
// If-None-Match / If-Modified-Since; extra headers win on conflict.
func (c *Client) Get(ctx context.Context, url, etag, lastModified string, extra map[string]string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return Result{ElapsedMS: elapsed}, err
	}
	defer resp.Body.Close()

	res := Result{
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		CacheControl: resp.Header.Get("Cache-Control"),
		RetryAfter:   resp.Header.Get("Retry-After"),
	}
	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			res.ElapsedMS = int(time.Since(start).Milliseconds())
			return res, fmt.Errorf("read body: %w", err)
		}
		res.Body = body
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}
	res.ElapsedMS = int(time.Since(start).Milliseconds())
	return res, nil
}

var maxAgeRe = regexp.MustCompile(`max-age=(\d+)`)

// MaxAgeSeconds extracts max-age from a Cache-Control header; ok is
// false when absent.
func MaxAgeSeconds(cacheControl string) (int, bool) {
	m := maxAgeRe.FindStringSubmatch(cacheControl)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// RetryAfterSeconds reads a delay-seconds Retry-After value; HTTP-date
// forms are ignored.
func RetryAfterSeconds(retryAfter string) (int, bool) {
	n, err := strconv.Atoi(retryAfter)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
