// Package notify delivers notifications to webhook and Apprise destinations.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/httpclient"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/settings"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoDestinations is returned when nothing deliverable remains after
	// filtering.
	ErrNoDestinations = errors.New("no valid notification destinations")

	// ErrAppriseNotConfigured is recorded for apprise destinations when no
	// Apprise API endpoint is configured.
	ErrAppriseNotConfigured = errors.New("notify.apprise_url is not configured")
)

// Severity is the notification level understood by Apprise.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// NormalizeSeverity maps s onto a known severity. Unknown values become info.
func NormalizeSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityFailure:
		return sev
	}
	return SeverityInfo
}

// Request is one notification to deliver.
type Request struct {
	// DestinationIDs restricts delivery. Empty means every enabled destination.
	DestinationIDs []string
	EventType      string
	Title          string
	Body           string
	Severity       string
	SubjectID      string
}

// Failure records one destination that could not be reached.
type Failure struct {
	DestinationID string
	Name          string
	Err           error
}

// Result summarises a dispatch.
type Result struct {
	Destinations int
	Delivered    int
	Skipped      int
	Failures     []Failure
}

// DestinationLookup fetches explicitly addressed destinations.
type DestinationLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]*models.NotificationDestination, error)
}

// SnapshotSource provides the cached set of configured destinations.
type SnapshotSource interface {
	Get(ctx context.Context) (*settings.Snapshot, error)
}

// Dispatcher resolves destinations and delivers to them concurrently.
type Dispatcher struct {
	lookup     DestinationLookup
	snapshots  SnapshotSource
	client     *httpclient.Client
	appriseURL string
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg config.NotifyConfig, lookup DestinationLookup, snapshots SnapshotSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Timeout
	hc.RetryMax = cfg.RetryMax
	hc.Logger = logger

	return &Dispatcher{
		lookup:     lookup,
		snapshots:  snapshots,
		client:     httpclient.New(hc),
		appriseURL: strings.TrimSpace(cfg.AppriseURL),
		logger:     logger,
		now:        time.Now,
	}
}

// Dispatch delivers req. Any failed destination fails the whole dispatch so
// the job is retried; destinations that succeeded may then receive the
// notification more than once.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	dests, err := d.resolve(ctx, req.DestinationIDs)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var webhooks, apprise []*models.NotificationDestination
	for _, dest := range dests {
		switch {
		case !dest.IsEnabled() || strings.TrimSpace(dest.URL) == "":
			result.Skipped++
		case dest.Kind == models.DestinationWebhook:
			webhooks = append(webhooks, dest)
		case dest.Kind == models.DestinationApprise:
			apprise = append(apprise, dest)
		default:
			result.Skipped++
		}
	}
	result.Destinations = len(webhooks) + len(apprise)
	if result.Destinations == 0 {
		return result, ErrNoDestinations
	}

	msg := message{
		EventType: req.EventType,
		Title:     req.Title,
		Body:      req.Body,
		Severity:  NormalizeSeverity(req.Severity),
		SubjectID: req.SubjectID,
		SentAt:    d.now().UTC(),
	}

	var mu sync.Mutex
	record := func(dests []*models.NotificationDestination, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Delivered += len(dests)
			return
		}
		for _, dest := range dests {
			result.Failures = append(result.Failures, Failure{DestinationID: dest.ID, Name: dest.Name, Err: err})
		}
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, dest := range webhooks {
		g.Go(func() error {
			record([]*models.NotificationDestination{dest}, d.sendWebhook(ctx, dest, msg))
			return nil
		})
	}
	if len(apprise) > 0 {
		g.Go(func() error {
			record(apprise, d.sendApprise(ctx, apprise, msg))
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failures) == 0 {
		return result, nil
	}

	errs := make([]error, 0, len(result.Failures))
	for _, f := range result.Failures {
		d.logger.Warn("notification delivery failed",
			slog.String("destination_id", f.DestinationID),
			slog.String("destination", f.Name),
			slog.String("error", f.Err.Error()))
		errs = append(errs, fmt.Errorf("%s: %w", f.Name, f.Err))
	}
	return result, fmt.Errorf("%d of %d notification deliveries failed: %w",
		len(result.Failures), result.Destinations, errors.Join(errs...))
}

func (d *Dispatcher) resolve(ctx context.Context, ids []string) ([]*models.NotificationDestination, error) {
	if len(ids) > 0 {
		dests, err := d.lookup.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolving notification destinations: %w", err)
		}
		return dests, nil
	}

	snap, err := d.snapshots.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving notification destinations: %w", err)
	}
	return snap.Destinations, nil
}

// message is the JSON body posted to webhooks.
type message struct {
	EventType string    `json:"event_type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	SubjectID string    `json:"subject_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// appriseRequest is the Apprise API stateless notify body.
type appriseRequest struct {
	URLs  string   `json:"urls"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Type  Severity `json:"type"`
}

func (d *Dispatcher) sendWebhook(ctx context.Context, dest *models.NotificationDestination, msg message) error {
	return d.postJSON(ctx, dest.URL, msg)
}

func (d *Dispatcher) sendApprise(ctx context.Context, dests []*models.NotificationDestination, msg message) error {
	if d.appriseURL == "" {
		return ErrAppriseNotConfigured
	}
	urls := make([]string, 0, len(dests))
	for _, dest := range dests {
		urls = append(urls, strings.TrimSpace(dest.URL))
	}
	return d.postJSON(ctx, d.appriseURL, appriseRequest{
		URLs:  strings.Join(urls, ","),
		Title: msg.Title,
		Body:  msg.Body,
		Type:  msg.Severity,
	})
}

func (d *Dispatcher) postJSON(ctx context.Context, target string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
