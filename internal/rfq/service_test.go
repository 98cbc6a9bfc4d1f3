package rfq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/contracts"
	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
)

type memoryRFQRepo struct {
	docs map[uuid.UUID]RFQ

	// conflictNextUpdate makes the next Update fail as if a concurrent
	// writer had rotated the revision in between.
	conflictNextUpdate bool
}

func newMemoryRFQRepo() *memoryRFQRepo {
	return &memoryRFQRepo{docs: make(map[uuid.UUID]RFQ)}
}

func (r *memoryRFQRepo) Get(ctx context.Context, id uuid.UUID) (RFQ, error) {
	doc, ok := r.docs[id]
	if !ok {
		return RFQ{}, shared.NotFoundf("RFQ %s not found", id)
	}
	return doc, nil
}

func (r *memoryRFQRepo) Create(ctx context.Context, doc RFQ) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *memoryRFQRepo) Update(ctx context.Context, doc RFQ, expectedRevision uuid.UUID) error {
	current, ok := r.docs[doc.ID]
	if !ok {
		return shared.NotFoundf("RFQ %s not found", doc.ID)
	}
	if r.conflictNextUpdate {
		r.conflictNextUpdate = false
		return shared.Conflictf("RFQ %s was modified concurrently", doc.ID)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("RFQ %s was modified concurrently", doc.ID)
	}
	r.docs[doc.ID] = doc
	return nil
}

type stubSupplierDir struct {
	byID map[uuid.UUID]suppliers.Supplier
}

func (d *stubSupplierDir) Get(ctx context.Context, id uuid.UUID) (suppliers.Supplier, error) {
	sup, ok := d.byID[id]
	if !ok {
		return suppliers.Supplier{}, shared.NotFoundf("supplier %s not found", id)
	}
	return sup, nil
}

type stubContracts struct {
	created []contracts.SupplierContractInput
	fail    error
}

func (c *stubContracts) CreateSupplierContract(ctx context.Context, input contracts.SupplierContractInput, actor shared.Identity) (contracts.SupplierContract, error) {
	if c.fail != nil {
		return contracts.SupplierContract{}, c.fail
	}
	c.created = append(c.created, input)
	return contracts.SupplierContract{}, nil
}

type stubRenderer struct {
	err error
}

func (r *stubRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 stub"), nil
}

type stubNotifier struct {
	sent    []notify.Message
	failFor map[string]error
}

func (n *stubNotifier) Send(ctx context.Context, msg notify.Message) error {
	if err, ok := n.failFor[msg.To]; ok {
		return err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type memoryIdem struct {
	claimed map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{claimed: make(map[string]bool)}
}

func (s *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	s.claimed[key] = true
	return nil
}

func (s *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(s.claimed, key)
	return nil
}

type stubReconciler struct {
	scheduled []uuid.UUID
}

func (r *stubReconciler) ScheduleAwardRetry(ctx context.Context, rfqID uuid.UUID) error {
	r.scheduled = append(r.scheduled, rfqID)
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type fixture struct {
	svc        *Service
	repo       *memoryRFQRepo
	dir        *stubSupplierDir
	contracts  *stubContracts
	renderer   *stubRenderer
	notifier   *stubNotifier
	idem       *memoryIdem
	reconciler *stubReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newMemoryRFQRepo(),
		dir:        &stubSupplierDir{byID: make(map[uuid.UUID]suppliers.Supplier)},
		contracts:  &stubContracts{},
		renderer:   &stubRenderer{},
		notifier:   &stubNotifier{failFor: make(map[string]error)},
		idem:       newMemoryIdem(),
		reconciler: &stubReconciler{},
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.svc = NewService(f.repo, f.dir, f.contracts, f.renderer, f.notifier, f.idem, f.reconciler, nil, logger)
	return f
}

func buyer() shared.Identity {
	return shared.Identity{ActorID: uuid.New(), Email: "buyer@example.com", Roles: []string{shared.RoleProcurement}}
}

func (f *fixture) addSupplier(email string) uuid.UUID {
	id := uuid.New()
	f.dir.byID[id] = suppliers.Supplier{
		DocMeta: shared.NewDocMeta(uuid.New(), time.Now()),
		Name:    "Supplier " + email,
		Email:   email,
		Status:  suppliers.StatusActive,
	}
	return id
}

func (f *fixture) draftRFQ(t *testing.T, supplierIDs ...uuid.UUID) RFQ {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), CreateInput{
		Title:              "Steel girders",
		InvitedSupplierIDs: supplierIDs,
	}, buyer())
	require.NoError(t, err)
	return doc
}

func TestCreateRequiresInvitedSuppliers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{Title: "Steel girders"}, buyer())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestSendDeliversToEverySupplierDespiteFailures(t *testing.T) {
	f := newFixture(t)
	good := f.addSupplier("good@supplier.example")
	bad := f.addSupplier("bad@supplier.example")
	missing := uuid.New() // invited but unknown to the directory
	f.notifier.failFor["bad@supplier.example"] = errors.New("mailbox full")

	doc := f.draftRFQ(t, good, bad, missing)
	sent, outcomes, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.Len(t, outcomes, 3)

	byID := make(map[uuid.UUID]DeliveryOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.SupplierID] = o
	}
	require.True(t, byID[good].Delivered)
	require.False(t, byID[bad].Delivered)
	require.NotEmpty(t, byID[bad].Error)
	require.False(t, byID[missing].Delivered)
	require.Len(t, f.notifier.sent, 1)
	require.Len(t, f.notifier.sent[0].Attachments, 1)
}

func TestSendRequiresDraft(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)

	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)

	_, _, err = f.svc.Send(context.Background(), doc.ID, buyer())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestSendSurvivesRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("converter unavailable")
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)

	sent, outcomes, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Delivered)

	// The mail still goes out, just without the PDF.
	require.Len(t, f.notifier.sent, 1)
	require.Empty(t, f.notifier.sent[0].Attachments)
}

func TestConcurrentWriteSurfacesAsConflict(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)

	f.repo.conflictNextUpdate = true
	_, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{
		SupplierID:   sup,
		QuotedPrice:  1200,
		DeliveryDays: 14,
	}, buyer())
	require.True(t, shared.IsKind(err, shared.KindConflict))

	// The conflict propagated unretried: nothing was persisted.
	stored, getErr := f.repo.Get(context.Background(), doc.ID)
	require.NoError(t, getErr)
	require.Empty(t, stored.Quotes)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestRecordQuoteAppendsAndIsIdempotentOnStatus(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)

	first, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 1200}, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusQuotesReceived, first.Status)
	require.Len(t, first.Quotes, 1)
	require.Equal(t, QuoteReceived, first.Quotes[0].Status)

	second, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 1100}, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusQuotesReceived, second.Status)
	require.Len(t, second.Quotes, 2)
}

func TestRecordQuoteRejectedOnceAwarded(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	quoted, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 1200}, buyer())
	require.NoError(t, err)
	_, err = f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[0].ID, buyer())
	require.NoError(t, err)

	_, err = f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 900}, buyer())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))

	current, err := f.svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, current.Quotes, 1, "rejected quote must not be appended")
}

func TestAwardMarksWinnerAndRejectsRest(t *testing.T) {
	f := newFixture(t)
	supA := f.addSupplier("a@supplier.example")
	supB := f.addSupplier("b@supplier.example")
	doc := f.draftRFQ(t, supA, supB)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	_, err = f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: supA, QuotedPrice: 1500}, buyer())
	require.NoError(t, err)
	quoted, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: supB, QuotedPrice: 1300}, buyer())
	require.NoError(t, err)

	winner := quoted.Quotes[1]
	awarded, err := f.svc.AwardQuote(context.Background(), doc.ID, winner.ID, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusAwarded, awarded.Status)
	require.Equal(t, supB, awarded.AwardedSupplierID)
	require.Equal(t, winner.ID, awarded.AwardedQuoteID)

	awardedCount := 0
	for _, q := range awarded.Quotes {
		switch q.Status {
		case QuoteAwarded:
			awardedCount++
		case QuoteRejected:
		default:
			t.Fatalf("quote %s left in status %s", q.ID, q.Status)
		}
	}
	require.Equal(t, 1, awardedCount)

	require.Len(t, f.contracts.created, 1)
	require.Equal(t, supB, f.contracts.created[0].SupplierID)
	require.Equal(t, 1300.0, f.contracts.created[0].ContractValue)
}

func TestAwardSameQuoteTwiceNeverDoubleAwards(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	quoted, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 800}, buyer())
	require.NoError(t, err)

	_, err = f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[0].ID, buyer())
	require.NoError(t, err)
	again, err := f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[0].ID, buyer())
	require.NoError(t, err)
	require.Equal(t, StatusAwarded, again.Status)
	require.Len(t, f.contracts.created, 1, "second award must not create a second contract")
}

func TestAwardDifferentQuoteAfterAwardFails(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	_, err = f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 800}, buyer())
	require.NoError(t, err)
	quoted, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 700}, buyer())
	require.NoError(t, err)

	_, err = f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[0].ID, buyer())
	require.NoError(t, err)
	_, err = f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[1].ID, buyer())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestAwardUnknownQuoteIsNotFound(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)

	_, err := f.svc.AwardQuote(context.Background(), doc.ID, uuid.New(), buyer())
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestAwardSurvivesContractStepFailure(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier("one@supplier.example")
	doc := f.draftRFQ(t, sup)
	_, _, err := f.svc.Send(context.Background(), doc.ID, buyer())
	require.NoError(t, err)
	quoted, err := f.svc.RecordQuote(context.Background(), doc.ID, QuoteInput{SupplierID: sup, QuotedPrice: 800}, buyer())
	require.NoError(t, err)

	f.contracts.fail = errors.New("database unavailable")
	awarded, err := f.svc.AwardQuote(context.Background(), doc.ID, quoted.Quotes[0].ID, buyer())
	require.NoError(t, err, "the award itself must stand")
	require.Equal(t, StatusAwarded, awarded.Status)
	require.Empty(t, f.contracts.created)
	require.Equal(t, []uuid.UUID{doc.ID}, f.reconciler.scheduled)

	// the key was released, so the reconciliation retry can claim it
	f.contracts.fail = nil
	require.NoError(t, f.svc.FinishAward(context.Background(), doc.ID))
	require.Len(t, f.contracts.created, 1)

	// a second retry is a no-op once the contract exists
	require.NoError(t, f.svc.FinishAward(context.Background(), doc.ID))
	require.Len(t, f.contracts.created, 1)
}
