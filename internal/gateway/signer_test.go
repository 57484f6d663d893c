package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

const sampleCallback = `{
  "type": "TRANSACTION",
  "obj": {
    "id": 192036465,
    "pending": false,
    "amount_cents": 100000,
    "success": true,
    "is_auth": false,
    "is_capture": false,
    "is_standalone_payment": true,
    "is_voided": false,
    "is_refunded": false,
    "is_3d_secure": true,
    "integration_id": 4097558,
    "has_parent_transaction": false,
    "order": {"id": 217503754, "merchant_order_id": "4a1f5a3e-order"},
    "created_at": "2024-06-13T11:33:44.592345",
    "currency": "EGP",
    "source_data": {"pan": "2346", "type": "card", "sub_type": "MasterCard"},
    "error_occured": false,
    "owner": 1600930,
    "payment_key_claims": {"next_payment_intention": "pi_test_123"}
  },
  "hmac": ""
}`

func TestSignedStringFieldOrder(t *testing.T) {
	var cb Callback
	if err := json.Unmarshal([]byte(sampleCallback), &cb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := "100000" + "2024-06-13T11:33:44.592345" + "EGP" + "false" + "false" + "192036465" + "4097558" +
		"true" + "false" + "false" + "false" + "true" + "false" + "217503754" + "1600930" + "false" +
		"2346" + "MasterCard" + "card" + "true"
	if got := signedString(cb.Obj); got != want {
		t.Fatalf("signed string mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestVerify(t *testing.T) {
	var cb Callback
	if err := json.Unmarshal([]byte(sampleCallback), &cb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := NewSigner("secret")

	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte(signedString(cb.Obj)))
	sig := hex.EncodeToString(mac.Sum(nil))

	if !s.Verify(cb.Obj, sig) {
		t.Fatalf("expected valid signature")
	}
	if !s.Verify(cb.Obj, strings.ToUpper(sig)) {
		t.Fatalf("hex case should not matter")
	}

	tampered := cb.Obj
	tampered.AmountCents = "1"
	if s.Verify(tampered, sig) {
		t.Fatalf("tampered amount must not verify")
	}
	if s.Verify(cb.Obj, "not-hex") {
		t.Fatalf("garbage signature must not verify")
	}
	if NewSigner("").Verify(cb.Obj, NewSigner("").Sign(cb.Obj)) {
		t.Fatalf("empty secret must never verify")
	}
}
