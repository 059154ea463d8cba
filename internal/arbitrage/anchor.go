package arbitrage

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// AnchorDepositMsg asks the vault to deposit amount uusd into Anchor.
func AnchorDepositMsg(sender, vault string, amount *uint256.Int) (domain.Msg, error) {
	raw, err := json.Marshal(map[string]any{
		"anchor_deposit": map[string]any{
			"amount": domain.Coin{Denom: domain.DenomUST, Amount: amount},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("arbitrage: anchor deposit: %w", err)
	}
	return domain.MsgExecuteContract{Sender: sender, Contract: vault, ExecuteMsg: raw}, nil
}

// AnchorWithdrawMsg asks the vault to redeem amount aUST from Anchor.
func AnchorWithdrawMsg(sender, vault string, amount *uint256.Int) (domain.Msg, error) {
	raw, err := json.Marshal(map[string]any{
		"anchor_withdraw": map[string]any{
			"amount": amount.Dec(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("arbitrage: anchor withdraw: %w", err)
	}
	return domain.MsgExecuteContract{Sender: sender, Contract: vault, ExecuteMsg: raw}, nil
}
