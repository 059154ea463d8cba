package terra

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

const pubKeyType = "tendermint/PubKeySecp256k1"

// aminoMsg is the legacy amino-JSON envelope of a message.
type aminoMsg struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type aminoFee struct {
	Amount domain.Coins `json:"amount"`
	Gas    string       `json:"gas"`
}

type aminoPubKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type aminoSignature struct {
	PubKey    aminoPubKey `json:"pub_key"`
	Signature string      `json:"signature"`
}

type stdTx struct {
	Msg        []aminoMsg       `json:"msg"`
	Fee        aminoFee         `json:"fee"`
	Signatures []aminoSignature `json:"signatures"`
	Memo       string           `json:"memo"`
}

// EncodeMsg returns the amino-JSON form of m.
func EncodeMsg(m domain.Msg) (json.RawMessage, error) {
	am, err := toAmino(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(am)
}

// EncodeMsgs returns the amino-JSON array of msgs, used for journaling.
func EncodeMsgs(msgs []domain.Msg) (json.RawMessage, error) {
	out := make([]aminoMsg, 0, len(msgs))
	for _, m := range msgs {
		am, err := toAmino(m)
		if err != nil {
			return nil, err
		}
		out = append(out, am)
	}
	return json.Marshal(out)
}

func toAmino(m domain.Msg) (aminoMsg, error) {
	switch v := m.(type) {
	case domain.MsgExecuteContract:
		coins := v.Coins
		if coins == nil {
			coins = domain.Coins{}
		}
		return aminoMsg{Type: v.MsgType(), Value: struct {
			Sender     string       `json:"sender"`
			Contract   string       `json:"contract"`
			ExecuteMsg string       `json:"execute_msg"`
			Coins      domain.Coins `json:"coins"`
		}{
			Sender:     v.Sender,
			Contract:   v.Contract,
			ExecuteMsg: base64.StdEncoding.EncodeToString(v.ExecuteMsg),
			Coins:      coins,
		}}, nil
	case domain.MsgSwap:
		return aminoMsg{Type: v.MsgType(), Value: struct {
			Trader    string      `json:"trader"`
			OfferCoin domain.Coin `json:"offer_coin"`
			AskDenom  string      `json:"ask_denom"`
		}{
			Trader:    v.Trader,
			OfferCoin: v.OfferCoin,
			AskDenom:  v.AskDenom,
		}}, nil
	default:
		return aminoMsg{}, fmt.Errorf("terra: encode msg %T: unsupported message type", m)
	}
}

func buildStdTx(tx domain.UnsignedTx) (stdTx, error) {
	msgs := make([]aminoMsg, 0, len(tx.Msgs))
	for _, m := range tx.Msgs {
		am, err := toAmino(m)
		if err != nil {
			return stdTx{}, err
		}
		msgs = append(msgs, am)
	}
	amount := tx.Fee.Amount
	if amount == nil {
		amount = domain.Coins{}
	}
	return stdTx{
		Msg:        msgs,
		Fee:        aminoFee{Amount: amount, Gas: strconv.FormatUint(tx.Fee.Gas, 10)},
		Signatures: []aminoSignature{},
		Memo:       tx.Memo,
	}, nil
}

// SignBytes returns the canonical sign document of tx: the StdSignDoc
// encoded as JSON with object keys sorted at every level.
func SignBytes(tx domain.UnsignedTx) ([]byte, error) {
	std, err := buildStdTx(tx)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{
		"account_number": strconv.FormatUint(tx.Account.AccountNumber, 10),
		"chain_id":       tx.ChainID,
		"fee":            std.Fee,
		"memo":           tx.Memo,
		"msgs":           std.Msg,
		"sequence":       strconv.FormatUint(tx.Account.Sequence, 10),
	}
	return sortedJSON(doc)
}

// sortedJSON marshals v and re-marshals it through generic maps, which
// encoding/json always emits with sorted keys.
func sortedJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
