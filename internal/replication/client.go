// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/snapshot"
)

const (
	healthPath = "/health"
	uploadPath = "/api/v1/backup/snapshots/upload"

	probeTimeout  = 5 * time.Second
	uploadTimeout = 5 * time.Minute
)

// Client performs health probes and snapshot uploads against replication
// targets. Uploads run through a per-target circuit breaker so a target that
// keeps failing stops consuming bandwidth until it recovers.
type Client struct {
	httpClient *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*uploadResponse]
}

// NewClient creates a replication client. httpClient may be nil, in which
// case a default client is used; per-request deadlines come from contexts,
// not the client timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*uploadResponse]),
	}
}

// Probe checks the target's health endpoint and classifies the outcome.
// HTTP 200 is healthy; any other status is degraded with the status code
// recorded; a timed-out probe is degraded with "timeout"; a transport
// failure is unreachable.
func (c *Client) Probe(ctx context.Context, target *Target) (TargetStatus, string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL+healthPath, nil)
	if err != nil {
		return TargetUnreachable, fmt.Sprintf("build probe request: %v", err)
	}
	authorize(req, target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return TargetDegraded, "timeout"
		}
		return TargetUnreachable, err.Error()
	}
	defer resp.Body.Close() //nolint:errcheck // probe response body is discarded

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return TargetDegraded, fmt.Sprintf("health check returned status %d", resp.StatusCode)
	}
	return TargetHealthy, ""
}

// authorize attaches the target's credential as a bearer token.
func authorize(req *http.Request, target *Target) {
	if target.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+target.Credential)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Upload ships the snapshot's data directory to the target as a multipart
// upload: a "snapshot" part carrying the metadata JSON and an "archive"
// part carrying the tar.gz stream. The target must answer 2xx with
// {"success": true}. Uploads wait for one of the target's concurrency
// slots before entering the breaker.
func (c *Client) Upload(ctx context.Context, target *Target, snap *snapshot.Snapshot) error {
	if err := target.acquire(ctx); err != nil {
		return fmt.Errorf("target %s upload slot: %w", target.ID, err)
	}
	defer target.release()

	breaker := c.breakerFor(target.ID)

	_, err := breaker.Execute(func() (*uploadResponse, error) {
		return c.doUpload(ctx, target, snap)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("target %s circuit open: %w", target.ID, err)
	}
	return err
}

func (c *Client) doUpload(ctx context.Context, target *Target, snap *snapshot.Snapshot) (*uploadResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	meta, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot metadata: %w", err)
	}

	// Stream the archive through a pipe so large snapshots never have to
	// fit in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadBody(mw, meta, snap.Location)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err) //nolint:errcheck // always returns nil
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL+uploadPath, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	authorize(req, target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", target.ID, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read upload response from %s: %w", target.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("target %s rejected upload with status %d", target.ID, resp.StatusCode)
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode upload response from %s: %w", target.ID, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("target %s reported failure: %s", target.ID, out.Message)
	}
	return &out, nil
}

func writeUploadBody(mw *multipart.Writer, meta []byte, location string) error {
	metaPart, err := mw.CreateFormField("snapshot")
	if err != nil {
		return fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(meta); err != nil {
		return fmt.Errorf("write metadata part: %w", err)
	}

	archivePart, err := mw.CreateFormFile("archive", "snapshot.tar.gz")
	if err != nil {
		return fmt.Errorf("create archive part: %w", err)
	}
	if err := snapshot.Pack(location, archivePart); err != nil {
		return fmt.Errorf("pack snapshot: %w", err)
	}
	return nil
}

func (c *Client) breakerFor(targetID string) *gobreaker.CircuitBreaker[*uploadResponse] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, ok := c.breakers[targetID]; ok {
		return breaker
	}

	logger := logging.With().Str("component", "replication_breaker").Str("target_id", targetID).Logger()
	breaker := gobreaker.NewCircuitBreaker[*uploadResponse](gobreaker.Settings{
		Name:        "upload-" + targetID,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Upload circuit breaker state changed")
		},
	})
	c.breakers[targetID] = breaker
	return breaker
}
