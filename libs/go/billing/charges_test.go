package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

type fakeBillingStore struct {
	charges  map[int64]db.Charge
	children map[int64][]int64
	nextID   int64
	products map[int64]db.Product
	prices   map[int64]db.Price
	users    map[int64]db.User
	subs     map[int64]db.UserSubscription
}

func newFakeBillingStore() *fakeBillingStore {
	return &fakeBillingStore{
		charges:  map[int64]db.Charge{},
		children: map[int64][]int64{},
		nextID:   1,
		products: map[int64]db.Product{},
		prices:   map[int64]db.Price{},
		users:    map[int64]db.User{},
		subs:     map[int64]db.UserSubscription{},
	}
}

func (f *fakeBillingStore) RunInTx(ctx context.Context, fn func(q Store) error) error {
	return fn(f)
}

func (f *fakeBillingStore) GetProduct(ctx context.Context, id int64) (db.Product, error) {
	return f.products[id], nil
}
func (f *fakeBillingStore) GetPrice(ctx context.Context, id int64) (db.Price, error) {
	return f.prices[id], nil
}
func (f *fakeBillingStore) GetSubscription(ctx context.Context, id int64) (db.UserSubscription, error) {
	return f.subs[id], nil
}
func (f *fakeBillingStore) UpdateSubscriptionStatus(ctx context.Context, id int64, status db.SubscriptionStatus) error {
	s := f.subs[id]
	s.Status = status
	f.subs[id] = s
	return nil
}
func (f *fakeBillingStore) UpdateSubscriptionMetadata(ctx context.Context, id int64, meta *db.SubscriptionMetadata) error {
	s := f.subs[id]
	s.Metadata = meta
	f.subs[id] = s
	return nil
}
func (f *fakeBillingStore) GetCharge(ctx context.Context, id int64) (db.Charge, error) {
	c, ok := f.charges[id]
	if !ok {
		return db.Charge{}, db.ErrNotFound
	}
	return c, nil
}
func (f *fakeBillingStore) GetChargeByPaymentPlatformID(ctx context.Context, platformID string) (*db.Charge, error) {
	for _, c := range f.charges {
		if c.PaymentPlatformID != nil && *c.PaymentPlatformID == platformID {
			return &c, nil
		}
	}
	return nil, nil
}
func (f *fakeBillingStore) GetChildCharges(ctx context.Context, parentID int64) ([]db.Charge, error) {
	var out []db.Charge
	for _, id := range f.children[parentID] {
		out = append(out, f.charges[id])
	}
	return out, nil
}
func (f *fakeBillingStore) InsertCharge(ctx context.Context, c db.Charge) (db.Charge, error) {
	c.ID = f.nextID
	f.nextID++
	f.charges[c.ID] = c
	if c.ParentChargeID != nil {
		f.children[*c.ParentChargeID] = append(f.children[*c.ParentChargeID], c.ID)
	}
	return c, nil
}
func (f *fakeBillingStore) UpdateCharge(ctx context.Context, c db.Charge) error {
	f.charges[c.ID] = c
	return nil
}
func (f *fakeBillingStore) LockCharge(ctx context.Context, id int64) (db.Charge, error) {
	return f.GetCharge(ctx, id)
}
func (f *fakeBillingStore) GetNextChargeForSubscription(ctx context.Context, subID int64, statuses []db.ChargeStatus) (*db.Charge, error) {
	for _, c := range f.charges {
		if c.SubscriptionID != nil && *c.SubscriptionID == subID {
			for _, s := range statuses {
				if c.Status == s {
					return &c, nil
				}
			}
		}
	}
	return nil, nil
}
func (f *fakeBillingStore) GetSubscriptionsForReconciliation(ctx context.Context, now time.Time) ([]db.UserSubscription, error) {
	return nil, nil
}
func (f *fakeBillingStore) GetChargesDueOrFailed(ctx context.Context, now, failedCutoff time.Time) ([]db.Charge, error) {
	return nil, nil
}
func (f *fakeBillingStore) GetStaleFailedCharges(ctx context.Context, cutoff time.Time) ([]db.Charge, error) {
	return nil, nil
}
func (f *fakeBillingStore) GetChargesMissingTax(ctx context.Context, limit int) ([]db.Charge, error) {
	return nil, nil
}
func (f *fakeBillingStore) GetUser(ctx context.Context, id int64) (db.User, error) {
	return f.users[id], nil
}
func (f *fakeBillingStore) UpdateUserCustomerID(ctx context.Context, id int64, customerID string) error {
	u := f.users[id]
	u.PaymentCustomerID = &customerID
	f.users[id] = u
	return nil
}

type fakePaymentProcessor struct {
	refundCalls []int64
	refundErr   error
}

func (f *fakePaymentProcessor) CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string, metadata map[string]string) (paymentproc.Intent, error) {
	return paymentproc.Intent{}, nil
}
func (f *fakePaymentProcessor) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return nil
}
func (f *fakePaymentProcessor) HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	return true, nil
}
func (f *fakePaymentProcessor) Refund(ctx context.Context, paymentIntentID string, amount int64) error {
	f.refundCalls = append(f.refundCalls, amount)
	return f.refundErr
}

type fakeTaxProcessor struct {
	negateErr error
}

func (f *fakeTaxProcessor) CreateEphemeralTransaction(ctx context.Context, fields taxproc.EphemeralTransactionFields) (taxproc.EphemeralTransactionResult, error) {
	return taxproc.EphemeralTransactionResult{}, nil
}
func (f *fakeTaxProcessor) NegateOrCreatePartialNegation(ctx context.Context, originalID string, originalVersion int32, originalAmount int64, negation taxproc.NegationFields) (taxproc.NegationResult, error) {
	if f.negateErr != nil {
		return taxproc.NegationResult{}, f.negateErr
	}
	return taxproc.NegationResult{TransactionID: "neg-1", TransactionVersion: originalVersion + 1}, nil
}

type fakeProvisioner struct{}

func (f *fakeProvisioner) CreateServer(ctx context.Context, req provisioner.CreateServerRequest) (provisioner.CreateServerResponse, error) {
	return provisioner.CreateServerResponse{}, nil
}
func (f *fakeProvisioner) Suspend(ctx context.Context, serverID string, reason provisioner.SuspendReason) error {
	return nil
}
func (f *fakeProvisioner) Unsuspend(ctx context.Context, serverID string) error { return nil }
func (f *fakeProvisioner) Reallocate(ctx context.Context, serverID string, req provisioner.ReallocateRequest) error {
	return nil
}

type fakeBadgeGranter struct{}

func (f *fakeBadgeGranter) GrantBadge(ctx context.Context, userID int64, badge int64) error {
	return nil
}
func (f *fakeBadgeGranter) RevokeBadge(ctx context.Context, userID int64, badge int64) error {
	return nil
}

type fakeNotifier struct{}

func (f *fakeNotifier) NotifyPaymentFailed(ctx context.Context, userID int64, chargeID int64) error {
	return nil
}
func (f *fakeNotifier) NotifyTaxIssue(ctx context.Context, userID int64, chargeID int64, message string) error {
	return nil
}

func newTestEngine(store *fakeBillingStore, payment PaymentProcessor, tax TaxProcessor) *Engine {
	return NewEngine(store, payment, tax, &fakeProvisioner{}, &fakeBadgeGranter{}, &fakeNotifier{}, cache.New(nil, time.Minute))
}

func TestRefund_FullRefundMatchesParentTotal(t *testing.T) {
	store := newFakeBillingStore()
	platformID := "pi_123"
	taxID := "tax_1"
	taxVer := int32(1)
	parent := db.Charge{
		UserID: 1, Amount: 1000, TaxAmount: 80, Status: db.ChargeSucceeded,
		PaymentPlatform: db.PlatformStripe, PaymentPlatformID: &platformID,
		TaxPlatformID: &taxID, TaxTransactionVersion: &taxVer,
	}
	inserted, _ := store.InsertCharge(context.Background(), parent)

	payment := &fakePaymentProcessor{}
	tax := &fakeTaxProcessor{}
	engine := newTestEngine(store, payment, tax)

	refund, err := engine.Refund(context.Background(), inserted.ID, RefundRequest{Kind: RefundFull})
	require.NoError(t, err)
	assert.Equal(t, int64(-1080), refund.Amount)
	assert.Equal(t, []int64{1080}, payment.refundCalls)
}

func TestRefund_RejectsNonSucceededParent(t *testing.T) {
	store := newFakeBillingStore()
	parent := db.Charge{UserID: 1, Amount: 1000, Status: db.ChargeOpen}
	inserted, _ := store.InsertCharge(context.Background(), parent)

	engine := newTestEngine(store, &fakePaymentProcessor{}, &fakeTaxProcessor{})
	_, err := engine.Refund(context.Background(), inserted.ID, RefundRequest{Kind: RefundFull})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestRefund_CumulativeRefundCannotExceedParentTotal(t *testing.T) {
	store := newFakeBillingStore()
	parent := db.Charge{UserID: 1, Amount: 1000, Status: db.ChargeSucceeded}
	inserted, _ := store.InsertCharge(context.Background(), parent)

	priorRefund := db.Charge{
		UserID: 1, Amount: -900, Status: db.ChargeSucceeded,
		Type: db.ChargeRefund, ParentChargeID: &inserted.ID,
	}
	store.InsertCharge(context.Background(), priorRefund)

	engine := newTestEngine(store, &fakePaymentProcessor{}, &fakeTaxProcessor{})
	_, err := engine.Refund(context.Background(), inserted.ID, RefundRequest{Kind: RefundPartial, Amount: 200})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestRefund_ManualTaxReconciliationStillCommitsRefundCharge(t *testing.T) {
	store := newFakeBillingStore()
	platformID := "pi_123"
	taxID := "tax_1"
	taxVer := int32(1)
	parent := db.Charge{
		UserID: 1, Amount: 1000, Status: db.ChargeSucceeded,
		PaymentPlatform: db.PlatformStripe, PaymentPlatformID: &platformID,
		TaxPlatformID: &taxID, TaxTransactionVersion: &taxVer,
	}
	inserted, _ := store.InsertCharge(context.Background(), parent)

	tax := &fakeTaxProcessor{negateErr: apperr.New(apperr.ManualTaxReconciliationRequired, "version mismatch")}
	engine := newTestEngine(store, &fakePaymentProcessor{}, tax)

	refund, err := engine.Refund(context.Background(), inserted.ID, RefundRequest{Kind: RefundFull})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ManualTaxReconciliationRequired))
	assert.NotZero(t, refund.ID, "the refund charge itself must still be committed")
	assert.Nil(t, refund.TaxPlatformID)
}

func TestRefund_UnprovisionCancelsNextOpenCharge(t *testing.T) {
	store := newFakeBillingStore()
	subID := int64(55)
	parent := db.Charge{UserID: 1, Amount: 1000, Status: db.ChargeSucceeded, SubscriptionID: &subID}
	inserted, _ := store.InsertCharge(context.Background(), parent)

	nextCharge := db.Charge{UserID: 1, Status: db.ChargeOpen, SubscriptionID: &subID, Due: time.Now().Add(30 * 24 * time.Hour)}
	store.InsertCharge(context.Background(), nextCharge)

	engine := newTestEngine(store, &fakePaymentProcessor{}, &fakeTaxProcessor{})
	_, err := engine.Refund(context.Background(), inserted.ID, RefundRequest{Kind: RefundFull, Unprovision: true})
	require.NoError(t, err)

	for _, c := range store.charges {
		if c.SubscriptionID != nil && *c.SubscriptionID == subID && c.Type != db.ChargeRefund && c.ID != inserted.ID {
			assert.Equal(t, db.ChargeCancelled, c.Status)
		}
	}
}
