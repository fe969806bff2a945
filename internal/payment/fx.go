package payment

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/payment/adapters/stripe"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideClient),
	fx.Provide(repository.ProvideLedger),
	fx.Provide(provideVerifier),
	fx.Provide(provideRouter),
	fx.Provide(provideIntentInitiator),
	fx.Provide(provideAckCache),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// provideVerifier follows the reloadable signature tolerance; the signing
// secret is env-only.
func provideVerifier(cfg config.Config, holder *config.WebhookConfigHolder) domain.Verifier {
	return stripe.NewVerifier(stripe.VerifierConfig{
		WebhookSecret:   cfg.Stripe.WebhookSecret,
		Tolerance:       holder.Get().SignatureTolerance,
		ToleranceSource: toleranceSource(holder),
	})
}

func toleranceSource(holder *config.WebhookConfigHolder) func() time.Duration {
	return func() time.Duration { return holder.Get().SignatureTolerance }
}

func provideRouter(log *zap.Logger) domain.Router {
	return stripe.NewRouter(log)
}

func provideIntentInitiator(cfg config.Config, log *zap.Logger) domain.IntentInitiator {
	client := stripe.NewIntentClient(cfg.Stripe.APIKey)
	if client == nil {
		log.Info("STRIPE_API_KEY not set, payments must be created with a processor intent id")
		return nil
	}
	return client
}

func provideAckCache(client *redis.Client) webhook.AckCache {
	return webhook.NewRedisAckCache(client)
}
