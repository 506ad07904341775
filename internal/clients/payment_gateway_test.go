package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_Deterministic(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	params := map[string]string{
		"order_no":  "RN1700000000123456",
		"amount":    "990",
		"timestamp": "1700000000",
		"nonce":     "abc123",
	}
	sig1 := g.Sign(params)
	sig2 := g.Sign(params)

	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64, "hex-encoded SHA-256")
}

func TestSign_IgnoresEmptyValuesAndOrder(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	withEmpty := g.Sign(map[string]string{"a": "1", "b": "", "c": "3"})
	withoutEmpty := g.Sign(map[string]string{"c": "3", "a": "1"})
	assert.Equal(t, withoutEmpty, withEmpty)
}

func TestSign_DependsOnCredentials(t *testing.T) {
	params := map[string]string{"order_no": "RN1"}
	a := NewHMACGateway("mch-001", "key-a").Sign(params)
	b := NewHMACGateway("mch-001", "key-b").Sign(params)
	c := NewHMACGateway("mch-002", "key-a").Sign(params)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func signedNotify(t *testing.T, apiKey string, notification PaymentNotification) []byte {
	t.Helper()
	resource, err := json.Marshal(notification)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(resource)

	payload, err := json.Marshal(map[string]interface{}{
		"signature": hex.EncodeToString(mac.Sum(nil)),
		"resource":  json.RawMessage(resource),
	})
	require.NoError(t, err)
	return payload
}

func TestDecryptNotify_RoundTrip(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	payload := signedNotify(t, "secret-key", PaymentNotification{
		OrderNo:       "RN1700000000123456",
		TransactionID: "tx-42",
		Amount:        990,
		TradeState:    "SUCCESS",
		PaidAt:        "2026-03-01T10:00:00Z",
	})

	notification, err := g.DecryptNotify(payload)
	require.NoError(t, err)
	assert.Equal(t, "RN1700000000123456", notification.OrderNo)
	assert.Equal(t, "tx-42", notification.TransactionID)
	assert.Equal(t, int64(990), notification.Amount)
	assert.Equal(t, "SUCCESS", notification.TradeState)
}

func TestDecryptNotify_RejectsBadSignature(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	payload := signedNotify(t, "wrong-key", PaymentNotification{OrderNo: "RN1"})
	_, err := g.DecryptNotify(payload)
	assert.Error(t, err)
}

func TestDecryptNotify_RejectsMalformedPayloads(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	for name, payload := range map[string][]byte{
		"not json":         []byte("not json"),
		"missing resource": []byte(`{"signature":"abc"}`),
	} {
		_, err := g.DecryptNotify(payload)
		assert.Error(t, err, name)
	}
}

func TestDecryptNotify_RequiresOrderNo(t *testing.T) {
	g := NewHMACGateway("mch-001", "secret-key")

	payload := signedNotify(t, "secret-key", PaymentNotification{TradeState: "SUCCESS"})
	_, err := g.DecryptNotify(payload)
	assert.Error(t, err)
}
