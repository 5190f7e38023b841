package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/consultapj/consultapj/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
}

// Gateway charges cards through the payment processor's server-to-server API.
type Gateway struct {
	log    *zap.Logger
	url    string
	token  string
	client *http.Client
}

func NewGateway(p Params) Charger {
	return &Gateway{
		log:    p.Log.Named("payment.gateway"),
		url:    strings.TrimRight(p.Cfg.PaymentGatewayURL, "/"),
		token:  p.Cfg.PaymentGatewayToken,
		client: &http.Client{Timeout: p.Cfg.PaymentTimeout},
	}
}

type chargePayload struct {
	CustomerRef string `json:"customer_ref"`
	AmountMinor int64  `json:"amount_minor_units"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type chargeResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.url == "" {
		return ChargeResult{}, errors.New("payment gateway not configured")
	}

	body, err := json.Marshal(chargePayload{
		CustomerRef: req.UserID.String(),
		AmountMinor: req.AmountMinor,
		Currency:    "BRL",
		Description: req.Description,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResult{}, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return ChargeResult{}, fmt.Errorf("payment gateway status %d", resp.StatusCode)
	}

	var parsed chargeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChargeResult{}, err
	}

	result := ChargeResult{
		Approved:  strings.EqualFold(parsed.Status, "approved"),
		Reference: parsed.Reference,
		Reason:    parsed.Reason,
	}
	g.log.Info("charge attempted",
		zap.String("user_id", req.UserID.String()),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.Bool("approved", result.Approved),
	)
	return result, nil
}

var Module = fx.Module("payment.gateway",
	fx.Provide(NewGateway),
)
