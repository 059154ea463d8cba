package terra

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// EstimateGas simulates tx and returns the raw gas used, without any
// adjustment. The fee in tx is ignored.
func (c *Client) EstimateGas(ctx context.Context, tx domain.UnsignedTx) (uint64, error) {
	tx.Fee = domain.Fee{}
	std, err := buildStdTx(tx)
	if err != nil {
		return 0, fmt.Errorf("terra: estimate gas: %w", err)
	}
	req := map[string]any{
		"tx":             std,
		"gas_adjustment": "1",
	}

	body, err := c.doPost(ctx, "/txs/estimate_fee", req)
	if err != nil {
		return 0, fmt.Errorf("terra: estimate gas: %w", err)
	}
	var res lcdResponse[struct {
		Fee struct {
			Gas uintString `json:"gas"`
		} `json:"fee"`
	}]
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("terra: estimate gas: %w: %v", domain.ErrMalformedResponse, err)
	}
	if res.Result.Fee.Gas == 0 {
		return 0, fmt.Errorf("terra: estimate gas: %w: zero gas", domain.ErrMalformedResponse)
	}
	return uint64(res.Result.Fee.Gas), nil
}

// Broadcast submits a signed tx in sync mode. A non-zero code in the result
// is a chain-side failure and is returned without an error.
func (c *Client) Broadcast(ctx context.Context, signed domain.SignedTx) (domain.BroadcastResult, error) {
	std, err := buildStdTx(signed.Tx)
	if err != nil {
		return domain.BroadcastResult{}, fmt.Errorf("terra: broadcast: %w", err)
	}
	std.Signatures = []aminoSignature{{
		PubKey: aminoPubKey{
			Type:  pubKeyType,
			Value: base64.StdEncoding.EncodeToString(signed.Signature.PubKey),
		},
		Signature: base64.StdEncoding.EncodeToString(signed.Signature.Signature),
	}}

	body, err := c.doPost(ctx, "/txs", map[string]any{"tx": std, "mode": "sync"})
	if err != nil {
		return domain.BroadcastResult{}, fmt.Errorf("terra: broadcast: %w", err)
	}
	var res struct {
		Height uintString `json:"height"`
		TxHash string     `json:"txhash"`
		Code   uint32     `json:"code"`
		RawLog string     `json:"raw_log"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.BroadcastResult{}, fmt.Errorf("terra: broadcast: %w: %v", domain.ErrMalformedResponse, err)
	}
	if res.TxHash == "" {
		return domain.BroadcastResult{}, fmt.Errorf("terra: broadcast: %w: missing txhash", domain.ErrMalformedResponse)
	}
	return domain.BroadcastResult{
		TxHash: res.TxHash,
		Code:   res.Code,
		RawLog: res.RawLog,
		Height: int64(res.Height),
	}, nil
}
