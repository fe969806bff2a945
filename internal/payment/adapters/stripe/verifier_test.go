package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","created":1700000000,"data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`)
	timestamp := time.Now().Unix()

	verifier := NewVerifier(VerifierConfig{WebhookSecret: secret})

	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader(secret, payload, timestamp))
	event, err := verifier.Verify(context.Background(), payload, reqHeader)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ProcessorEventID)
	assert.Equal(t, "pi_1", event.ProcessorIntentID)
	assert.Equal(t, "payment_intent.succeeded", event.EventType)
	assert.Equal(t, "succeeded", event.ObjectStatus)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.OccurredAt)

	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader("wrong", payload, timestamp))
	_, err = verifier.Verify(context.Background(), payload, reqHeader)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestVerifyRejectsBeforeParsing(t *testing.T) {
	secret := "whsec_test"
	verifier := NewVerifier(VerifierConfig{WebhookSecret: secret})
	garbage := []byte(`not json`)

	_, err := verifier.Verify(context.Background(), garbage, http.Header{})
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "missing header")

	header := http.Header{}
	header.Set(SignatureHeader, "t=abc,v9=zzz")
	_, err = verifier.Verify(context.Background(), garbage, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "invalid header")

	stale := time.Now().Add(-time.Hour).Unix()
	header.Set(SignatureHeader, buildStripeSignatureHeader(secret, garbage, stale))
	_, err = verifier.Verify(context.Background(), garbage, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "outside tolerance")

	header.Set(SignatureHeader, buildStripeSignatureHeader(secret, garbage, time.Now().Unix()))
	_, err = verifier.Verify(context.Background(), garbage, header)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload, "signed garbage")
}

func TestVerifyWithoutSecretFailsClosed(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	header := http.Header{}
	header.Set(SignatureHeader, buildStripeSignatureHeader("", payload, time.Now().Unix()))

	_, err := NewVerifier(VerifierConfig{}).Verify(context.Background(), payload, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestVerifyFollowsToleranceSource(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"payment_intent.processing","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	header := http.Header{}
	header.Set(SignatureHeader, buildStripeSignatureHeader(secret, payload, time.Now().Add(-10*time.Minute).Unix()))

	var tolerance atomic.Int64
	tolerance.Store(int64(5 * time.Minute))
	verifier := NewVerifier(VerifierConfig{
		WebhookSecret:   secret,
		ToleranceSource: func() time.Duration { return time.Duration(tolerance.Load()) },
	})

	_, err := verifier.Verify(context.Background(), payload, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	tolerance.Store(int64(15 * time.Minute))
	event, err := verifier.Verify(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ProcessorEventID)

	tolerance.Store(0)
	_, err = verifier.Verify(context.Background(), payload, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "falls back to the default tolerance")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantErr    error
		wantIntent string
		wantReason string
	}{{
		name:    "missing id",
		payload: `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`,
		wantErr: domain.ErrMalformedPayload,
	}, {
		name:    "payment intent event without intent",
		payload: `{"id":"evt_1","type":"payment_intent.processing","data":{"object":{}}}`,
		wantErr: domain.ErrMalformedPayload,
	}, {
		name:    "payment intent event carrying another object",
		payload: `{"id":"evt_1","type":"payment_intent.processing","data":{"object":{"id":"ch_1","object":"charge"}}}`,
		wantErr: domain.ErrMalformedPayload,
	}, {
		name:       "charge references intent",
		payload:    `{"id":"evt_2","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_9"}}}`,
		wantIntent: "pi_9",
	}, {
		name:       "charge with expanded intent",
		payload:    `{"id":"evt_3","type":"charge.failed","data":{"object":{"id":"ch_1","object":"charge","payment_intent":{"id":"pi_8"}}}}`,
		wantIntent: "pi_8",
	}, {
		name:       "failure reason",
		payload:    `{"id":"evt_4","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}}}`,
		wantIntent: "pi_2",
		wantReason: "insufficient_funds: Your card has insufficient funds.",
	}, {
		name:       "cancellation reason",
		payload:    `{"id":"evt_5","type":"payment_intent.canceled","data":{"object":{"id":"pi_3","object":"payment_intent","status":"canceled","cancellation_reason":"abandoned"}}}`,
		wantIntent: "pi_3",
		wantReason: "abandoned",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Parse([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIntent, event.ProcessorIntentID)
			assert.Equal(t, tt.wantReason, event.FailureReason)
		})
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
