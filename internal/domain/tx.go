package domain

import (
	"encoding/json"
	"time"
)

// Msg is a chain message. Implementations are encoded by the chain client.
type Msg interface {
	MsgType() string
}

// MsgExecuteContract invokes a wasm contract with optional attached funds.
type MsgExecuteContract struct {
	Sender     string
	Contract   string
	ExecuteMsg json.RawMessage
	Coins      Coins
}

// MsgType implements Msg.
func (MsgExecuteContract) MsgType() string { return "wasm/MsgExecuteContract" }

// MsgSwap swaps through the native market module.
type MsgSwap struct {
	Trader    string
	OfferCoin Coin
	AskDenom  string
}

// MsgType implements Msg.
func (MsgSwap) MsgType() string { return "market/MsgSwap" }

// Fee is the fee attached to a transaction.
type Fee struct {
	Gas    uint64
	Amount Coins
}

// FeeMode selects how the sender prices a transaction.
type FeeMode string

const (
	FeeFixed     FeeMode = "fixed"
	FeeEstimated FeeMode = "estimated"
)

// FeePolicy tells the sender how to build the fee for a transaction.
type FeePolicy struct {
	Mode FeeMode
	// Fixed is the fee amount used in FeeFixed mode.
	Fixed Coin
	// Denom is the fee denom used in FeeEstimated mode.
	Denom string
}

// Account holds the signing sequence data of an on-chain account.
type Account struct {
	Address       string
	AccountNumber uint64
	Sequence      uint64
}

// UnsignedTx is a list of messages plus everything needed to sign them.
type UnsignedTx struct {
	ChainID string
	Account Account
	Msgs    []Msg
	Fee     Fee
	Memo    string
}

// Signature is a secp256k1 signature over a tx sign document.
type Signature struct {
	PubKey    []byte
	Signature []byte
}

// SignedTx is ready to broadcast.
type SignedTx struct {
	Tx        UnsignedTx
	Signature Signature
}

// BroadcastResult is what the chain returned for a submitted tx.
type BroadcastResult struct {
	TxHash string
	Code   uint32
	RawLog string
	Height int64
}

// TxStatus is the final state of a Send call.
type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxRejected  TxStatus = "rejected"
	TxFailed    TxStatus = "failed"
	TxSimulated TxStatus = "simulated"
	// TxDuplicate means an identical tx was broadcast moments ago and is
	// presumably still waiting for inclusion.
	TxDuplicate TxStatus = "duplicate"
)

// TxOutcome is the result of a Send call. A rejected outcome means the fee
// check declined and nothing was broadcast.
type TxOutcome struct {
	Status TxStatus
	Fee    Fee
	Result BroadcastResult
	// Messages is the encoded message list, kept for the execution journal.
	Messages json.RawMessage
}

// Execution records one transaction attempt made by a bot.
type Execution struct {
	ID           string          `json:"id"`
	EvaluationID string          `json:"evaluation_id"`
	Bot          string          `json:"bot"`
	Direction    Direction       `json:"direction"`
	Kind         string          `json:"kind"`
	TxHash       string          `json:"tx_hash"`
	Status       TxStatus        `json:"status"`
	FeeAmount    string          `json:"fee_amount"`
	FeeDenom     string          `json:"fee_denom"`
	Gas          uint64          `json:"gas"`
	RawLog       string          `json:"raw_log,omitempty"`
	Messages     json.RawMessage `json:"messages"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

// Execution kinds.
const (
	ExecKindArbitrage = "arbitrage"
	ExecKindDeposit   = "anchor_deposit"
	ExecKindWithdraw  = "anchor_withdraw"
)
