// Package domain defines the normalized contract between the consultation
// orchestrator and the upstream data providers.
package domain

import (
	"context"
	"encoding/json"
	"fmt"

	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
)

// FieldGroup names a subset of data served by one upstream call that can
// independently succeed or be reported offline.
type FieldGroup string

const (
	FieldProtestos             FieldGroup = "protestos"
	FieldReceitaFederal        FieldGroup = "receita_federal"
	FieldCadastroContribuintes FieldGroup = "cadastro_contribuintes"
	FieldGeocodificacao        FieldGroup = "geocodificacao"
	FieldSuframa               FieldGroup = "suframa"
	FieldSimplesNacional       FieldGroup = "simples_nacional"
)

// FailureCode classifies an upstream failure for a field group.
type FailureCode string

const (
	FailureNotFound       FailureCode = "not_found"
	FailureServiceOffline FailureCode = "service_offline"
	FailureRateLimited    FailureCode = "rate_limited"
	FailureTimeout        FailureCode = "timeout"
	FailureUnknown        FailureCode = "unknown"
)

// FieldError is a typed per-field-group failure.
type FieldError struct {
	Code    FailureCode
	Message string
}

func (e *FieldError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldResult is the outcome for one requested field group.
type FieldResult struct {
	Data     json.RawMessage
	Err      *FieldError
	CacheHit bool
}

// PartialResult maps each requested field group to its outcome. Every
// requested group is present in the map, either with data or a typed error.
type PartialResult map[FieldGroup]FieldResult

// Strategy carries per-call hints from the orchestrator.
type Strategy struct {
	// ForceFresh bypasses the subject cache for this call only; it does not
	// invalidate entries for other callers.
	ForceFresh bool
}

// Fetcher is one upstream data provider adapter. Adapters never touch the
// ledger or consultation tables; their only side effects are outbound calls
// and local cache writes.
type Fetcher interface {
	Provider() catalogdomain.Provider
	Fetch(ctx context.Context, subject string, groups []FieldGroup, strategy Strategy) PartialResult
}

// Failed returns a PartialResult marking every requested group with err.
func Failed(groups []FieldGroup, err *FieldError) PartialResult {
	result := make(PartialResult, len(groups))
	for _, group := range groups {
		result[group] = FieldResult{Err: err}
	}
	return result
}
