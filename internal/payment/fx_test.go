package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/payment/adapters/stripe"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierPicksUpReloadedTolerance(t *testing.T) {
	const secret = "whsec_reload"
	payload := []byte(`{"id":"evt_1","type":"payment_intent.processing","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	signedAt := time.Now().Add(-10 * time.Minute).Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", signedAt, payload)))
	header := http.Header{}
	header.Set(stripe.SignatureHeader, fmt.Sprintf("t=%d,v1=%s", signedAt, hex.EncodeToString(mac.Sum(nil))))

	holder := config.NewStaticWebhookConfigHolder(config.DefaultWebhookConfig())
	cfg := config.Config{Stripe: config.StripeConfig{WebhookSecret: secret}}
	verifier := provideVerifier(cfg, holder)

	_, err := verifier.Verify(context.Background(), payload, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	widened := config.DefaultWebhookConfig()
	widened.SignatureTolerance = 15 * time.Minute
	require.NoError(t, holder.Store(widened))

	event, err := verifier.Verify(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ProcessorEventID)
}
