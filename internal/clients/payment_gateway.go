package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PaymentNotification is the decoded content of a gateway callback
type PaymentNotification struct {
	OrderNo       string `json:"order_no"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	TradeState    string `json:"trade_state"`
	PaidAt        string `json:"paid_at"`
}

// PaymentGateway is the port for payment parameter signing and callback
// decoding. Both operations are pure given the merchant credentials.
type PaymentGateway interface {
	Sign(params map[string]string) string
	DecryptNotify(payload []byte) (*PaymentNotification, error)
}

// HMACGateway signs with HMAC-SHA256 over the sorted parameter string and
// verifies callback signatures the same way
type HMACGateway struct {
	merchantID string
	apiKey     string
}

// NewHMACGateway creates a new payment gateway helper
func NewHMACGateway(merchantID, apiKey string) *HMACGateway {
	return &HMACGateway{merchantID: merchantID, apiKey: apiKey}
}

// Sign produces the request signature over sorted key=value pairs
func (g *HMACGateway) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	pairs = append(pairs, "mch_id="+g.merchantID)

	mac := hmac.New(sha256.New, []byte(g.apiKey))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// notifyEnvelope is the signed wire shape of a gateway callback
type notifyEnvelope struct {
	Signature string          `json:"signature"`
	Resource  json.RawMessage `json:"resource"`
}

// DecryptNotify verifies and decodes a gateway callback payload
func (g *HMACGateway) DecryptNotify(payload []byte) (*PaymentNotification, error) {
	var envelope notifyEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode payment notification: %w", err)
	}
	if len(envelope.Resource) == 0 {
		return nil, fmt.Errorf("payment notification has no resource")
	}

	mac := hmac.New(sha256.New, []byte(g.apiKey))
	mac.Write(envelope.Resource)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(envelope.Signature)) {
		return nil, fmt.Errorf("payment notification signature mismatch")
	}

	var notification PaymentNotification
	if err := json.Unmarshal(envelope.Resource, &notification); err != nil {
		return nil, fmt.Errorf("failed to decode payment resource: %w", err)
	}
	if notification.OrderNo == "" {
		return nil, fmt.Errorf("payment notification missing order number")
	}
	return &notification, nil
}
