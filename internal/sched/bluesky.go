package sched

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

const blueskySessionURL = "https://bsky.social/xrpc/com.atproto.server.createSession"

// blueskySession exchanges the app password for a short-lived access
// token. A non-empty outcome is the error code to record on the
// source.
func (s *Scheduler) blueskySession(ctx context.Context) (token, outcome string) {
	body, err := json.Marshal(map[string]string{
		"identifier": s.cfg.BlueskyHandle,
		"password":   s.cfg.BlueskyAppPassword,
	})
	if err != nil {
		return "", "bluesky_auth_error"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, blueskySessionURL, bytes.NewReader(body))
	if err != nil {
		return "", "bluesky_auth_error"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.auth.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", "bluesky_auth_timeout"
		}
		return "", "bluesky_auth_error"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Sprintf("bluesky_auth_http_%d", resp.StatusCode)
	}

	var session struct {
		AccessJWT string `json:"accessJwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil || session.AccessJWT == "" {
		return "", "bluesky_auth_parse_error"
	}
	return session.AccessJWT, ""
}
