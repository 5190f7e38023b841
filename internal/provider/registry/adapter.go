// Package registry adapts the multi-field company registry API: federal tax
// status, state registrations, geocoding, SUFRAMA and Simples Nacional data.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/cache"
	"github.com/consultapj/consultapj/internal/config"
	obsmetrics "github.com/consultapj/consultapj/internal/observability/metrics"
	providerdomain "github.com/consultapj/consultapj/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Adapter struct {
	log      *zap.Logger
	baseURL  string
	apiKey   string
	client   *http.Client
	retry    providerdomain.RetryPolicy
	cacheTTL time.Duration
	cache    cache.Cache[string, json.RawMessage]
	metrics  *obsmetrics.Metrics
}

func New(p Params) *Adapter {
	retry := providerdomain.DefaultRetryPolicy()
	if p.Cfg.ProviderRetryBase > 0 {
		retry.BaseDelay = p.Cfg.ProviderRetryBase
	}
	return &Adapter{
		log:      p.Log.Named("provider.registry"),
		baseURL:  strings.TrimRight(p.Cfg.RegistryBaseURL, "/"),
		apiKey:   p.Cfg.RegistryAPIKey,
		client:   &http.Client{Timeout: p.Cfg.ProviderTimeout},
		retry:    retry,
		cacheTTL: p.Cfg.ProviderCacheTTL,
		cache:    cache.NewTTLCache[string, json.RawMessage](),
		metrics:  p.Metrics,
	}
}

func (a *Adapter) Provider() catalogdomain.Provider {
	return catalogdomain.ProviderRegistry
}

func (a *Adapter) Fetch(ctx context.Context, subject string, groups []providerdomain.FieldGroup, strategy providerdomain.Strategy) providerdomain.PartialResult {
	result := make(providerdomain.PartialResult, len(groups))

	missing := groups
	if !strategy.ForceFresh {
		missing = missing[:0:0]
		for _, group := range groups {
			if data, ok := a.cache.Get(cacheKey(subject, group)); ok {
				result[group] = providerdomain.FieldResult{Data: data, CacheHit: true}
				continue
			}
			missing = append(missing, group)
		}
	}
	if len(missing) == 0 {
		return result
	}

	tracker := providerdomain.NewDegradeTracker()
	enabled := missing
	for {
		payload, offline, ferr := a.call(ctx, subject, enabled)
		if ferr != nil {
			for _, group := range enabled {
				result[group] = providerdomain.FieldResult{Err: ferr}
				a.recordFailure(ctx, ferr.Code)
			}
			return result
		}

		if len(offline) > 0 {
			remaining, ok := tracker.Degrade(enabled, offline)
			offlineErr := &providerdomain.FieldError{
				Code:    providerdomain.FailureServiceOffline,
				Message: "upstream reported field group offline",
			}
			if !ok {
				for _, group := range enabled {
					result[group] = providerdomain.FieldResult{Err: offlineErr}
					a.recordFailure(ctx, offlineErr.Code)
				}
				return result
			}
			kept := make(map[providerdomain.FieldGroup]bool, len(remaining))
			for _, group := range remaining {
				kept[group] = true
			}
			for _, group := range enabled {
				if !kept[group] {
					result[group] = providerdomain.FieldResult{Err: offlineErr}
					a.recordFailure(ctx, offlineErr.Code)
				}
			}
			a.log.Warn("retrying with degraded field groups",
				zap.String("subject", subject),
				zap.Int("remaining", len(remaining)),
			)
			enabled = remaining
			continue
		}

		for _, group := range enabled {
			raw, ok := payload[string(group)]
			if !ok || len(raw) == 0 {
				notFound := &providerdomain.FieldError{Code: providerdomain.FailureNotFound, Message: "field group absent in upstream response"}
				result[group] = providerdomain.FieldResult{Err: notFound}
				a.recordFailure(ctx, notFound.Code)
				continue
			}
			result[group] = providerdomain.FieldResult{Data: raw}
			a.cache.Set(cacheKey(subject, group), raw, a.cacheTTL)
		}
		return result
	}
}

// call performs one upstream round trip, retrying internally on rate limits.
func (a *Adapter) call(ctx context.Context, subject string, groups []providerdomain.FieldGroup) (map[string]json.RawMessage, []providerdomain.FieldGroup, *providerdomain.FieldError) {
	var payload map[string]json.RawMessage
	var offline []providerdomain.FieldGroup

	ferr := providerdomain.DoWithBackoff(ctx, a.retry, func(ctx context.Context) *providerdomain.FieldError {
		p, off, err := a.doRequest(ctx, subject, groups)
		payload, offline = p, off
		return err
	})
	if ferr != nil {
		return nil, nil, ferr
	}
	return payload, offline, nil
}

func (a *Adapter) doRequest(ctx context.Context, subject string, groups []providerdomain.FieldGroup) (map[string]json.RawMessage, []providerdomain.FieldGroup, *providerdomain.FieldError) {
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, string(group))
	}
	url := fmt.Sprintf("%s/v1/companies/%s?groups=%s", a.baseURL, subject, strings.Join(names, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureTimeout, Message: err.Error()}
		}
		return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: "malformed upstream payload"}
		}
		return payload, nil, nil
	case http.StatusNotFound:
		return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureNotFound, Message: "subject not found"}
	case http.StatusTooManyRequests:
		return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureRateLimited, Message: "upstream rate limit"}
	case http.StatusServiceUnavailable:
		offline := parseOfflineGroups(body)
		if len(offline) == 0 {
			return nil, nil, &providerdomain.FieldError{Code: providerdomain.FailureServiceOffline, Message: "upstream unavailable"}
		}
		return nil, offline, nil
	default:
		return nil, nil, &providerdomain.FieldError{
			Code:    providerdomain.FailureUnknown,
			Message: fmt.Sprintf("unexpected upstream status %d", resp.StatusCode),
		}
	}
}

// parseOfflineGroups extracts the offline field groups from a 503 body of
// the form {"offline": ["geocodificacao"]}.
func parseOfflineGroups(body []byte) []providerdomain.FieldGroup {
	var payload struct {
		Offline []string `json:"offline"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	groups := make([]providerdomain.FieldGroup, 0, len(payload.Offline))
	for _, name := range payload.Offline {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			groups = append(groups, providerdomain.FieldGroup(trimmed))
		}
	}
	return groups
}

func (a *Adapter) recordFailure(ctx context.Context, code providerdomain.FailureCode) {
	a.metrics.RecordProviderFailure(ctx, string(catalogdomain.ProviderRegistry), string(code))
}

func cacheKey(subject string, group providerdomain.FieldGroup) string {
	return subject + "|" + string(group)
}
