package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	stripeadapter "github.com/smallbiznis/payflow/internal/payment/adapters/stripe"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type harness struct {
	db     *gorm.DB
	svc    domain.WebhookService
	repo   domain.Repository
	ledger domain.Ledger
	clock  *clock.FakeClock
}

type harnessOption func(*Params)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:     db,
		repo:   repository.Provide(),
		ledger: repository.ProvideLedger(),
		clock:  clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	params := Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    h.clock,
		Repo:     h.repo,
		Ledger:   h.ledger,
		Verifier: stripeadapter.NewVerifier(stripeadapter.VerifierConfig{WebhookSecret: testSecret}),
		Router:   stripeadapter.NewRouter(zap.NewNop()),
		Config:   config.NewStaticWebhookConfigHolder(config.DefaultWebhookConfig()),
	}
	for _, opt := range opts {
		opt(&params)
	}
	h.svc = NewService(params)
	return h
}

func (h *harness) createPayment(t *testing.T, id int64, intentID string) snowflake.ID {
	t.Helper()
	now := h.clock.Now()
	payment := &domain.Payment{
		ID:                snowflake.ID(id),
		ProcessorIntentID: intentID,
		State:             domain.StateCreated,
		Amount:            2500,
		Currency:          "USD",
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, h.repo.Insert(context.Background(), h.db, payment))
	return payment.ID
}

func (h *harness) deliver(t *testing.T, payload []byte) (domain.WebhookResult, error) {
	t.Helper()
	return h.svc.IngestWebhook(context.Background(), payload, signedHeader(testSecret, payload))
}

func (h *harness) payment(t *testing.T, id snowflake.ID) *domain.Payment {
	t.Helper()
	payment, err := h.repo.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, payment)
	return payment
}

func (h *harness) ledgerRows(t *testing.T, processorEventID string) int64 {
	t.Helper()
	var count int64
	err := h.db.Raw(`SELECT COUNT(1) FROM processed_webhook_events WHERE processor_event_id = ?`, processorEventID).Scan(&count).Error
	require.NoError(t, err)
	return count
}

func TestRequiresActionThenDuplicateThenSkippedSuccess(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")

	requiresAction := intentEvent("evt_1", "payment_intent.requires_action", "pi_1", "requires_action")
	result, err := h.deliver(t, requiresAction)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, domain.StateCreated, result.From)
	assert.Equal(t, domain.StateRequiresAction, result.To)

	result, err = h.deliver(t, requiresAction)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, int64(1), h.ledgerRows(t, "evt_1"))

	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateRequiresAction, payment.State)
	assert.Equal(t, int64(2), payment.Version)

	succeeded := intentEvent("evt_2", "payment_intent.succeeded", "pi_1", "succeeded")
	result, err = h.deliver(t, succeeded)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeRejected, result.Outcome)
	assert.ErrorIs(t, result.Rejection, domain.ErrInvalidTransition)

	payment = h.payment(t, paymentID)
	assert.Equal(t, domain.StateRequiresAction, payment.State)
	assert.Equal(t, int64(2), payment.Version)

	row, err := h.ledger.FindByProcessorEventID(context.Background(), h.db, "evt_2")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, domain.OutcomeRejected, row.Outcome)
	assert.Equal(t, "succeed", row.AppliedTransition)

	result, err = h.deliver(t, succeeded)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)
}

func TestProcessingThenSucceededIsTerminal(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")

	result, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)

	result, err = h.deliver(t, intentEvent("evt_2", "payment_intent.succeeded", "pi_1", "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.StateSucceeded, result.To)

	row, err := h.ledger.FindByProcessorEventID(context.Background(), h.db, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, "processing->succeeded", row.AppliedTransition)
	require.NotNil(t, row.TargetPaymentID)
	assert.Equal(t, paymentID, *row.TargetPaymentID)

	later := [][]byte{
		failedEvent("evt_3", "pi_1", "card_declined"),
		intentEvent("evt_4", "payment_intent.canceled", "pi_1", "canceled"),
		intentEvent("evt_5", "payment_intent.processing", "pi_1", "processing"),
		intentEvent("evt_6", "payment_intent.requires_action", "pi_1", "requires_action"),
	}
	for _, payload := range later {
		result, err := h.deliver(t, payload)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookOutcomeRejected, result.Outcome)
		assert.ErrorIs(t, result.Rejection, domain.ErrInvalidTransition)
	}

	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateSucceeded, payment.State)
	assert.Equal(t, int64(3), payment.Version)
	assert.Nil(t, payment.FailureReason)
}

func TestPaymentFailedRecordsReason(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")

	_, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	require.NoError(t, err)
	result, err := h.deliver(t, failedEvent("evt_2", "pi_1", "card_declined"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.To)

	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateFailed, payment.State)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "card_declined: declined", *payment.FailureReason)
	require.NotNil(t, payment.LastTransitionAt)
	assert.True(t, payment.LastTransitionAt.Equal(h.clock.Now()))
}

func TestConcurrentDuplicateDeliveriesApplyOnce(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing")

	const deliveries = 16
	var (
		mu       sync.Mutex
		outcomes = map[string]int{}
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < deliveries; i++ {
		g.Go(func() error {
			result, err := h.svc.IngestWebhook(ctx, payload, signedHeader(testSecret, payload))
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[result.Outcome]++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, outcomes[domain.WebhookOutcomeApplied])
	assert.Equal(t, deliveries-1, outcomes[domain.WebhookOutcomeDuplicate])
	assert.Equal(t, int64(1), h.ledgerRows(t, "evt_1"))

	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateProcessing, payment.State)
	assert.Equal(t, int64(2), payment.Version)
}

func TestInvalidSignatureNeverTouchesStore(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing")

	_, err := h.svc.IngestWebhook(context.Background(), payload, signedHeader("whsec_wrong", payload))
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	_, err = h.svc.IngestWebhook(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateCreated, payment.State)
	assert.Equal(t, int64(1), payment.Version)
}

func TestSignedMalformedPayloadIsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.deliver(t, []byte(`{"id":"evt_1","type":"payment_intent.processing","data":{"object":{}}}`))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
}

func TestUnrelatedEventIsIgnored(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"id":"evt_1","type":"customer.created","created":1700000000,"data":{"object":{"id":"cus_1","object":"customer"}}}`)

	result, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeIgnored, result.Outcome)
	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
}

func TestUnknownIntentIsOrphaned(t *testing.T) {
	h := newHarness(t)

	result, err := h.deliver(t, intentEvent("evt_1", "payment_intent.succeeded", "pi_unknown", "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeOrphaned, result.Outcome)

	row, err := h.ledger.FindByProcessorEventID(context.Background(), h.db, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, domain.OutcomeOrphaned, row.Outcome)
	assert.Nil(t, row.TargetPaymentID)
	assert.Equal(t, "pi_unknown", row.ProcessorIntentID)
}

// racingRepo lands a competing transition through the same transaction right
// before the guarded write, the way a concurrent committed writer would.
type racingRepo struct {
	domain.Repository
	races     int
	competing domain.State
	calls     int
}

func (r *racingRepo) UpdateState(ctx context.Context, db *gorm.DB, update domain.StateUpdate) error {
	r.calls++
	if r.calls <= r.races {
		err := db.WithContext(ctx).Exec(
			`UPDATE payments SET state = ?, version = version + 1 WHERE id = ?`,
			r.competing,
			update.ID,
		).Error
		if err != nil {
			return err
		}
	}
	return r.Repository.UpdateState(ctx, db, update)
}

func TestVersionConflictReloadsAndRetries(t *testing.T) {
	racing := &racingRepo{Repository: repository.Provide(), races: 1, competing: domain.StateRequiresAction}
	h := newHarness(t, func(p *Params) { p.Repo = racing })
	paymentID := h.createPayment(t, 1, "pi_1")

	result, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.StateRequiresAction, result.From)
	assert.Equal(t, domain.StateProcessing, result.To)
	assert.Equal(t, 2, racing.calls)

	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateProcessing, payment.State)
	assert.Equal(t, int64(3), payment.Version)
}

func TestVersionConflictRetriesAreBounded(t *testing.T) {
	racing := &racingRepo{Repository: repository.Provide(), races: 100, competing: domain.StateCreated}
	cfg := config.DefaultWebhookConfig()
	cfg.MaxConflictRetries = 2
	h := newHarness(t, func(p *Params) {
		p.Repo = racing
		p.Config = config.NewStaticWebhookConfigHolder(cfg)
	})
	paymentID := h.createPayment(t, 1, "pi_1")

	_, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 3, racing.calls)

	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
	payment := h.payment(t, paymentID)
	assert.Equal(t, domain.StateCreated, payment.State)
	assert.Equal(t, int64(1), payment.Version)
}

type failingRepo struct {
	domain.Repository
	err error
}

func (r *failingRepo) UpdateState(ctx context.Context, db *gorm.DB, update domain.StateUpdate) error {
	if r.err != nil {
		return r.err
	}
	return r.Repository.UpdateState(ctx, db, update)
}

func TestStoreFailureReleasesClaim(t *testing.T) {
	failing := &failingRepo{Repository: repository.Provide(), err: errors.New("connection reset by peer")}
	h := newHarness(t, func(p *Params) { p.Repo = failing })
	paymentID := h.createPayment(t, 1, "pi_1")
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing")

	_, err := h.deliver(t, payload)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
	assert.Equal(t, domain.StateCreated, h.payment(t, paymentID).State)

	failing.err = nil
	result, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, int64(1), h.ledgerRows(t, "evt_1"))
}

func TestStoreTimeoutIsRetryable(t *testing.T) {
	slow := &failingRepo{Repository: repository.Provide(), err: fmt.Errorf("update: %w", context.DeadlineExceeded)}
	h := newHarness(t, func(p *Params) { p.Repo = slow })
	h.createPayment(t, 1, "pi_1")

	_, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), h.ledgerRows(t, "evt_1"))
}

type ackEntry struct {
	paymentID snowflake.ID
	ttl       time.Duration
}

type memoryAckCache struct {
	mu   sync.Mutex
	keys map[string]ackEntry
}

func (c *memoryAckCache) Lookup(ctx context.Context, processorEventID string) (snowflake.ID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.keys[processorEventID]
	return entry.paymentID, ok, nil
}

func (c *memoryAckCache) Remember(ctx context.Context, processorEventID string, paymentID snowflake.ID, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[processorEventID] = ackEntry{paymentID: paymentID, ttl: ttl}
	return nil
}

type countingLedger struct {
	domain.Ledger
	claims int
}

func (l *countingLedger) Claim(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) (bool, error) {
	l.claims++
	return l.Ledger.Claim(ctx, db, event)
}

func TestAckCacheShortCircuitsAfterCommit(t *testing.T) {
	cache := &memoryAckCache{keys: map[string]ackEntry{}}
	ledger := &countingLedger{Ledger: repository.ProvideLedger()}
	h := newHarness(t, func(p *Params) {
		p.AckCache = cache
		p.Ledger = ledger
	})
	paymentID := h.createPayment(t, 1, "pi_1")
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing")

	result, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, ackEntry{paymentID: paymentID, ttl: config.DefaultWebhookConfig().AckCacheTTL}, cache.keys["evt_1"])

	result, err = h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, "evt_1", result.ProcessorEventID)
	assert.Equal(t, 1, ledger.claims)
}

func TestAckCacheRememberedForLedgerDuplicate(t *testing.T) {
	h := newHarness(t)
	paymentID := h.createPayment(t, 1, "pi_1")
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing")

	_, err := h.deliver(t, payload)
	require.NoError(t, err)

	// A cache attached after the first commit learns the target from the ledger.
	cache := &memoryAckCache{keys: map[string]ackEntry{}}
	h.svc.(*Service).ackCache = cache

	result, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, paymentID, cache.keys["evt_1"].paymentID)
}

func TestAckCacheRemembersOrphanWithoutPayment(t *testing.T) {
	cache := &memoryAckCache{keys: map[string]ackEntry{}}
	h := newHarness(t, func(p *Params) { p.AckCache = cache })
	payload := intentEvent("evt_1", "payment_intent.processing", "pi_unknown", "processing")

	result, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeOrphaned, result.Outcome)

	result, err = h.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)
	assert.Zero(t, result.PaymentID)
}

// deadlineLedger loses every claim and records the context the follow-up
// lookup ran under.
type deadlineLedger struct {
	domain.Ledger
	mu          sync.Mutex
	deadline    time.Time
	hasDeadline bool
}

func (l *deadlineLedger) Claim(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) (bool, error) {
	return false, nil
}

func (l *deadlineLedger) FindByProcessorEventID(ctx context.Context, db *gorm.DB, processorEventID string) (*domain.ProcessedEvent, error) {
	l.mu.Lock()
	l.deadline, l.hasDeadline = ctx.Deadline()
	l.mu.Unlock()
	return l.Ledger.FindByProcessorEventID(ctx, db, processorEventID)
}

func TestDuplicateLookupIsBoundedByStoreTimeout(t *testing.T) {
	ledger := &deadlineLedger{Ledger: repository.ProvideLedger()}
	cfg := config.DefaultWebhookConfig()
	cfg.StoreTimeout = 2 * time.Second
	h := newHarness(t, func(p *Params) {
		p.Ledger = ledger
		p.Config = config.NewStaticWebhookConfigHolder(cfg)
	})
	h.createPayment(t, 1, "pi_1")

	before := time.Now()
	result, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, result.Outcome)

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	require.True(t, ledger.hasDeadline)
	assert.WithinDuration(t, before.Add(cfg.StoreTimeout), ledger.deadline, time.Second)
}

func TestAckCacheNotPopulatedOnRollback(t *testing.T) {
	cache := &memoryAckCache{keys: map[string]ackEntry{}}
	h := newHarness(t, func(p *Params) {
		p.AckCache = cache
		p.Repo = &failingRepo{Repository: repository.Provide(), err: errors.New("boom")}
	})
	h.createPayment(t, 1, "pi_1")

	_, err := h.deliver(t, intentEvent("evt_1", "payment_intent.processing", "pi_1", "processing"))
	require.Error(t, err)
	assert.Empty(t, cache.keys)
}

func intentEvent(eventID, eventType, intentID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"created":1700000000,"data":{"object":{"id":%q,"object":"payment_intent","status":%q}}}`,
		eventID, eventType, intentID, status,
	))
}

func failedEvent(eventID, intentID, code string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"payment_intent.payment_failed","created":1700000000,"data":{"object":{"id":%q,"object":"payment_intent","status":"requires_payment_method","last_payment_error":{"code":%q,"message":"declined"}}}}`,
		eventID, intentID, code,
	))
}

func signedHeader(secret string, payload []byte) http.Header {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	header := http.Header{}
	header.Set(stripeadapter.SignatureHeader, fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return header
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	schema := []string{
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			processor_intent_id TEXT NOT NULL,
			state TEXT NOT NULL CHECK (state IN ('created', 'requires_action', 'processing', 'succeeded', 'failed', 'canceled')),
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			version BIGINT NOT NULL,
			last_transition_at DATETIME,
			failure_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payments_processor_intent_id ON payments(processor_intent_id)`,
		`CREATE TABLE processed_webhook_events (
			id BIGINT PRIMARY KEY,
			processor_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			processor_intent_id TEXT NOT NULL,
			target_payment_id BIGINT,
			applied_transition TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			received_at DATETIME NOT NULL,
			payload TEXT
		)`,
		`CREATE UNIQUE INDEX ux_processed_webhook_events_event_id ON processed_webhook_events(processor_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
