// Package protesto adapts the notary protest registry upstream.
package protesto

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
		log:      p.Log.Named("provider.protesto"),
		baseURL:  strings.TrimRight(p.Cfg.ProtestoBaseURL, "/"),
		apiKey:   p.Cfg.ProtestoAPIKey,
		client:   &http.Client{Timeout: p.Cfg.ProviderTimeout},
		retry:    retry,
		cacheTTL: p.Cfg.ProviderCacheTTL,
		cache:    cache.NewTTLCache[string, json.RawMessage](),
		metrics:  p.Metrics,
	}
}

func (a *Adapter) Provider() catalogdomain.Provider {
	return catalogdomain.ProviderProtesto
}

// Fetch serves the single protest field group. The upstream has no partial
// field-group signal, so a 503 is terminal for the call; there is nothing
// left to degrade to.
func (a *Adapter) Fetch(ctx context.Context, subject string, groups []providerdomain.FieldGroup, strategy providerdomain.Strategy) providerdomain.PartialResult {
	result := make(providerdomain.PartialResult, len(groups))

	if !strategy.ForceFresh {
		if data, ok := a.cache.Get(subject); ok {
			for _, group := range groups {
				result[group] = providerdomain.FieldResult{Data: data, CacheHit: true}
			}
			return result
		}
	}

	var data json.RawMessage
	ferr := providerdomain.DoWithBackoff(ctx, a.retry, func(ctx context.Context) *providerdomain.FieldError {
		payload, err := a.doRequest(ctx, subject)
		data = payload
		return err
	})
	if ferr != nil {
		a.metrics.RecordProviderFailure(ctx, string(catalogdomain.ProviderProtesto), string(ferr.Code))
		return providerdomain.Failed(groups, ferr)
	}

	a.cache.Set(subject, data, a.cacheTTL)
	for _, group := range groups {
		result[group] = providerdomain.FieldResult{Data: data}
	}
	return result
}

func (a *Adapter) doRequest(ctx context.Context, subject string) (json.RawMessage, *providerdomain.FieldError) {
	url := fmt.Sprintf("%s/v1/protests/%s", a.baseURL, subject)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &providerdomain.FieldError{Code: providerdomain.FailureTimeout, Message: err.Error()}
		}
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !json.Valid(body) {
			return nil, &providerdomain.FieldError{Code: providerdomain.FailureUnknown, Message: "malformed upstream payload"}
		}
		return json.RawMessage(body), nil
	case http.StatusNotFound:
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureNotFound, Message: "no protest records for subject"}
	case http.StatusTooManyRequests:
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureRateLimited, Message: "upstream rate limit"}
	case http.StatusServiceUnavailable:
		return nil, &providerdomain.FieldError{Code: providerdomain.FailureServiceOffline, Message: "protest registry unavailable"}
	default:
		return nil, &providerdomain.FieldError{
			Code:    providerdomain.FailureUnknown,
			Message: fmt.Sprintf("unexpected upstream status %d", resp.StatusCode),
		}
	}
}
