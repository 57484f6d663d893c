package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Callback is the body the gateway posts after processing a transaction.
type Callback struct {
	Type string      `json:"type"`
	Obj  Transaction `json:"obj"`
	HMAC string      `json:"hmac"`
}

type Transaction struct {
	ID                   json.Number      `json:"id"`
	AmountCents          json.Number      `json:"amount_cents"`
	CreatedAt            string           `json:"created_at"`
	Currency             string           `json:"currency"`
	ErrorOccured         bool             `json:"error_occured"`
	HasParentTransaction bool             `json:"has_parent_transaction"`
	IntegrationID        json.Number      `json:"integration_id"`
	Is3DSecure           bool             `json:"is_3d_secure"`
	IsAuth               bool             `json:"is_auth"`
	IsCapture            bool             `json:"is_capture"`
	IsRefunded           bool             `json:"is_refunded"`
	IsStandalonePayment  bool             `json:"is_standalone_payment"`
	IsVoided             bool             `json:"is_voided"`
	Order                TransactionOrder `json:"order"`
	Owner                json.Number      `json:"owner"`
	Pending              bool             `json:"pending"`
	SourceData           SourceData       `json:"source_data"`
	Success              bool             `json:"success"`
	PaymentKeyClaims     PaymentKeyClaims `json:"payment_key_claims"`
}

type TransactionOrder struct {
	ID              json.Number `json:"id"`
	MerchantOrderID string      `json:"merchant_order_id"`
}

type SourceData struct {
	Pan     string `json:"pan"`
	SubType string `json:"sub_type"`
	Type    string `json:"type"`
}

type PaymentKeyClaims struct {
	NextPaymentIntention string `json:"next_payment_intention"`
}

// Signer computes the callback HMAC: SHA-512 keyed by the shared secret over
// the concatenation of a fixed list of transaction fields.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(t Transaction) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(signedString(t)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the signature of t. An empty secret never
// verifies.
func (s *Signer) Verify(t Transaction, sig string) bool {
	if len(s.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(sig)))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(t))
	return hmac.Equal(got, want)
}

func signedString(t Transaction) string {
	fields := []string{
		t.AmountCents.String(),
		t.CreatedAt,
		t.Currency,
		strconv.FormatBool(t.ErrorOccured),
		strconv.FormatBool(t.HasParentTransaction),
		t.ID.String(),
		t.IntegrationID.String(),
		strconv.FormatBool(t.Is3DSecure),
		strconv.FormatBool(t.IsAuth),
		strconv.FormatBool(t.IsCapture),
		strconv.FormatBool(t.IsRefunded),
		strconv.FormatBool(t.IsStandalonePayment),
		strconv.FormatBool(t.IsVoided),
		t.Order.ID.String(),
		t.Owner.String(),
		strconv.FormatBool(t.Pending),
		t.SourceData.Pan,
		t.SourceData.SubType,
		t.SourceData.Type,
		strconv.FormatBool(t.Success),
	}
	return strings.Join(fields, "")
}
