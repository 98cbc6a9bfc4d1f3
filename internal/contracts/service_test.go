package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

type memoryContractRepo struct {
	contracts         map[uuid.UUID]Contract
	supplierContracts map[uuid.UUID]SupplierContract
	documents         int
}

func newMemoryContractRepo() *memoryContractRepo {
	return &memoryContractRepo{
		contracts:         make(map[uuid.UUID]Contract),
		supplierContracts: make(map[uuid.UUID]SupplierContract),
	}
}

func (r *memoryContractRepo) GetContract(ctx context.Context, id uuid.UUID) (Contract, error) {
	c, ok := r.contracts[id]
	if !ok {
		return Contract{}, shared.NotFoundf("contract %s not found", id)
	}
	return c, nil
}

func (r *memoryContractRepo) FindContractByOffer(ctx context.Context, offerID uuid.UUID) (Contract, bool, error) {
	for _, c := range r.contracts {
		if c.OfferID == offerID {
			return c, true, nil
		}
	}
	return Contract{}, false, nil
}

func (r *memoryContractRepo) CreateContract(ctx context.Context, c Contract) error {
	r.contracts[c.ID] = c
	return nil
}

func (r *memoryContractRepo) UpdateContract(ctx context.Context, c Contract, expectedRevision uuid.UUID) error {
	current, ok := r.contracts[c.ID]
	if !ok {
		return shared.NotFoundf("contract %s not found", c.ID)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("contract %s was modified concurrently", c.ID)
	}
	r.contracts[c.ID] = c
	return nil
}

func (r *memoryContractRepo) DeleteContract(ctx context.Context, id uuid.UUID, expectedRevision uuid.UUID) error {
	current, ok := r.contracts[id]
	if !ok {
		return shared.NotFoundf("contract %s not found", id)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("contract %s was modified concurrently", id)
	}
	delete(r.contracts, id)
	return nil
}

func (r *memoryContractRepo) GetSupplierContract(ctx context.Context, id uuid.UUID) (SupplierContract, error) {
	sc, ok := r.supplierContracts[id]
	if !ok {
		return SupplierContract{}, shared.NotFoundf("supplier contract %s not found", id)
	}
	return sc, nil
}

func (r *memoryContractRepo) CreateSupplierContract(ctx context.Context, sc SupplierContract) error {
	r.supplierContracts[sc.ID] = sc
	return nil
}

func (r *memoryContractRepo) UpdateSupplierContract(ctx context.Context, sc SupplierContract, expectedRevision uuid.UUID) error {
	current, ok := r.supplierContracts[sc.ID]
	if !ok {
		return shared.NotFoundf("supplier contract %s not found", sc.ID)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("supplier contract %s was modified concurrently", sc.ID)
	}
	r.supplierContracts[sc.ID] = sc
	return nil
}

func (r *memoryContractRepo) StoreDocument(ctx context.Context, entity string, id uuid.UUID, pdf []byte) (string, error) {
	r.documents++
	return fmt.Sprintf("/documents/%s-%s", entity, id), nil
}

type stubOffers struct {
	offers map[uuid.UUID]masterdata.Offer
}

func (s *stubOffers) GetOffer(ctx context.Context, id uuid.UUID) (masterdata.Offer, error) {
	offer, ok := s.offers[id]
	if !ok {
		return masterdata.Offer{}, shared.NotFoundf("offer %s not found", id)
	}
	return offer, nil
}

type stubRenderer struct {
	calls int
}

func (r *stubRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	r.calls++
	return []byte("%PDF-1.4 stub"), nil
}

type stubNotifier struct {
	sent []notify.Message
}

func (n *stubNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestService(t *testing.T) (*Service, *memoryContractRepo, *stubOffers, *stubRenderer, *stubNotifier) {
	t.Helper()
	repo := newMemoryContractRepo()
	offers := &stubOffers{offers: make(map[uuid.UUID]masterdata.Offer)}
	renderer := &stubRenderer{}
	notifier := &stubNotifier{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	svc := NewService(repo, offers, renderer, notifier, nil, nil, logger, 0)
	return svc, repo, offers, renderer, notifier
}

func procurementActor() shared.Identity {
	return shared.Identity{ActorID: uuid.New(), Email: "buyer@example.com", Roles: []string{shared.RoleProcurement}}
}

func managementActor() shared.Identity {
	return shared.Identity{ActorID: uuid.New(), Email: "cfo@example.com", Roles: []string{shared.RoleManagement}}
}

func TestCreateRoundsEveryDerivedFigure(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems:       []LineItemInput{{Description: "Licence", Quantity: 2, UnitPrice: 10.005}},
		DiscountPercent: 10,
		TaxRate:         0.19,
	}, procurementActor())
	require.NoError(t, err)

	require.Equal(t, 20.01, c.LineItems[0].TotalPrice)
	require.Equal(t, 20.01, c.Subtotal)
	require.Equal(t, 2.00, c.DiscountAmount)
	require.Equal(t, 3.42, c.TaxAmount)
	require.Equal(t, 21.43, c.Total)
	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, "EUR", c.Currency)
	require.NotEmpty(t, c.Number)
}

func TestCreateRejectsEmptyLineItems(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{TaxRate: 0.19}, procurementActor())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestCreateFromOfferCopiesFiguresVerbatim(t *testing.T) {
	svc, _, offers, _, _ := newTestService(t)

	offerID := uuid.New()
	offers.offers[offerID] = masterdata.Offer{
		ID:         offerID,
		Number:     "OF-1001",
		CustomerID: uuid.New(),
		Status:     masterdata.OfferStatusAccepted,
		LineItems: []masterdata.OfferLineItem{
			{Description: "Implementation", Quantity: 10, UnitPrice: 150, TotalPrice: 1500},
		},
		Subtotal: 1500, DiscountPercent: 5, DiscountAmount: 75,
		TaxRate: 0.19, TaxAmount: 270.75, Total: 1695.75, Currency: "EUR",
	}

	c, err := svc.CreateFromOffer(context.Background(), offerID, procurementActor())
	require.NoError(t, err)
	require.Equal(t, offerID, c.OfferID)
	require.Equal(t, 1500.0, c.Subtotal)
	require.Equal(t, 75.0, c.DiscountAmount)
	require.Equal(t, 270.75, c.TaxAmount)
	require.Equal(t, 1695.75, c.Total)
	require.Equal(t, StatusDraft, c.Status)
}

func TestCreateFromOfferRequiresAcceptedOffer(t *testing.T) {
	svc, _, offers, _, _ := newTestService(t)

	offerID := uuid.New()
	offers.offers[offerID] = masterdata.Offer{ID: offerID, Status: masterdata.OfferStatusSent}

	_, err := svc.CreateFromOffer(context.Background(), offerID, procurementActor())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))

	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, masterdata.OfferStatusSent, domainErr.Current)
	require.Equal(t, []string{masterdata.OfferStatusAccepted}, domainErr.Allowed)
}

func TestCreateFromOfferRefusesSecondContract(t *testing.T) {
	svc, _, offers, _, _ := newTestService(t)

	offerID := uuid.New()
	offers.offers[offerID] = masterdata.Offer{
		ID: offerID, Number: "OF-2001", Status: masterdata.OfferStatusAccepted,
		LineItems: []masterdata.OfferLineItem{{Description: "Retainer", Quantity: 1, UnitPrice: 500, TotalPrice: 500}},
		Subtotal:  500, Total: 500,
	}

	first, err := svc.CreateFromOffer(context.Background(), offerID, procurementActor())
	require.NoError(t, err)

	_, err = svc.CreateFromOffer(context.Background(), offerID, procurementActor())
	require.True(t, shared.IsKind(err, shared.KindConflict))

	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, first.ID.String(), domainErr.RefID)
}

func TestUpdateRecomputesTotalsOnFinancialPatch(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Support", Quantity: 1, UnitPrice: 100}},
		TaxRate:   0.19,
	}, actor)
	require.NoError(t, err)

	discount := 10.0
	updated, err := svc.Update(context.Background(), c.ID, UpdateInput{DiscountPercent: &discount}, actor)
	require.NoError(t, err)
	require.Equal(t, 10.0, updated.DiscountAmount)
	require.Equal(t, 17.10, updated.TaxAmount)
	require.Equal(t, 107.10, updated.Total)
	require.Greater(t, updated.Version, c.Version)
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Support", Quantity: 1, UnitPrice: 100}},
	}, actor)
	require.NoError(t, err)

	status := StatusCompleted
	_, err = svc.Update(context.Background(), c.ID, UpdateInput{Status: &status}, actor)
	require.True(t, shared.IsKind(err, shared.KindBadRequest))

	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, string(StatusDraft), domainErr.Current)
	require.Contains(t, domainErr.Allowed, string(StatusSigned))
}

func TestUpdateSigningIsTwoStepAndFreezesContract(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Build", Quantity: 1, UnitPrice: 5000}},
	}, actor)
	require.NoError(t, err)

	status := StatusSigned
	_, err = svc.Update(context.Background(), c.ID, UpdateInput{Status: &status}, actor)
	require.True(t, shared.IsKind(err, shared.KindBadRequest), "signing without signedBy must fail")

	signedBy := "Jordan Fisher"
	signed, err := svc.Update(context.Background(), c.ID, UpdateInput{Status: &status, SignedBy: &signedBy}, actor)
	require.NoError(t, err)
	require.Equal(t, StatusSigned, signed.Status)
	require.True(t, signed.Finalized)
	require.NotNil(t, signed.SignedAt)
	require.Equal(t, signedBy, signed.SignedBy)
	// status write plus finalize write
	require.Equal(t, c.Version+2, signed.Version)
	require.True(t, repo.contracts[c.ID].Finalized)
}

func TestUpdateFinalizedAllowsOnlyRetentionFields(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Build", Quantity: 1, UnitPrice: 5000}},
	}, actor)
	require.NoError(t, err)

	status := StatusSigned
	signedBy := "Jordan Fisher"
	_, err = svc.Update(context.Background(), c.ID, UpdateInput{Status: &status, SignedBy: &signedBy}, actor)
	require.NoError(t, err)

	number := "CT-REWRITE"
	_, err = svc.Update(context.Background(), c.ID, UpdateInput{Number: &number}, actor)
	require.True(t, shared.IsKind(err, shared.KindForbidden))

	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, []string{"number"}, domainErr.Fields)

	notes := "archived under case 42"
	patched, err := svc.Update(context.Background(), c.ID, UpdateInput{Notes: &notes}, actor)
	require.NoError(t, err)
	require.Equal(t, notes, patched.Notes)
}

func TestDeleteOnlyRemovesDrafts(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Build", Quantity: 1, UnitPrice: 100}},
	}, actor)
	require.NoError(t, err)

	status := StatusSigned
	signedBy := "Jordan Fisher"
	signed, err := svc.Update(context.Background(), c.ID, UpdateInput{Status: &status, SignedBy: &signedBy}, actor)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), signed.ID, actor)
	require.True(t, shared.IsKind(err, shared.KindForbidden))

	draft, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Scoping", Quantity: 1, UnitPrice: 100}},
	}, actor)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), draft.ID, actor))
	_, ok := repo.contracts[draft.ID]
	require.False(t, ok)
}

func TestGenerateDocumentStoresURL(t *testing.T) {
	svc, repo, _, renderer, _ := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Build", Quantity: 1, UnitPrice: 100}},
	}, actor)
	require.NoError(t, err)

	pdf, err := svc.GenerateDocument(context.Background(), c.ID, actor)
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, 1, repo.documents)
	require.NotEmpty(t, repo.contracts[c.ID].RenderedDocumentURL)
}

func TestSendDocumentAttachesPDF(t *testing.T) {
	svc, _, _, _, notifier := newTestService(t)
	actor := procurementActor()

	c, err := svc.Create(context.Background(), CreateInput{
		LineItems: []LineItemInput{{Description: "Build", Quantity: 1, UnitPrice: 100}},
	}, actor)
	require.NoError(t, err)

	require.NoError(t, svc.SendDocument(context.Background(), c.ID, "legal@customer.example", actor))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "legal@customer.example", notifier.sent[0].To)
	require.Len(t, notifier.sent[0].Attachments, 1)
	require.Equal(t, "application/pdf", notifier.sent[0].Attachments[0].MIMEType)
}

func TestCreateSupplierContractDerivesMilestoneAmounts(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	sc, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID:    uuid.New(),
		ContractValue: 9000,
		PaymentSchedule: []PaymentMilestone{
			{Description: "Upfront", Percentage: 30},
			{Description: "Delivery", Percentage: 70},
		},
	}, procurementActor())
	require.NoError(t, err)
	require.Equal(t, SCStatusDraft, sc.Status)
	require.Equal(t, 2700.0, sc.PaymentSchedule[0].Amount)
	require.Equal(t, 6300.0, sc.PaymentSchedule[1].Amount)
	require.Equal(t, MilestoneOpen, sc.PaymentSchedule[0].Status)
}

func TestCreateSupplierContractRejectsBrokenSchedule(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID:    uuid.New(),
		ContractValue: 9000,
		PaymentSchedule: []PaymentMilestone{
			{Description: "Upfront", Percentage: 30},
			{Description: "Delivery", Percentage: 50},
		},
	}, procurementActor())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestApproveBelowThresholdReleasesDirectly(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	sc, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID: uuid.New(), ContractValue: 12_000,
	}, actor)
	require.NoError(t, err)

	approved, err := svc.ApproveSupplierContract(context.Background(), sc.ID, actor)
	require.NoError(t, err)
	require.Equal(t, SCStatusSentToSupplier, approved.Status)
	require.Equal(t, actor.ActorID, approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
}

func TestApproveHighValueRequiresManagement(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	buyer := procurementActor()

	sc, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID: uuid.New(), ContractValue: 75_000,
	}, buyer)
	require.NoError(t, err)

	// first non-management call parks it for approval
	pending, err := svc.ApproveSupplierContract(context.Background(), sc.ID, buyer)
	require.NoError(t, err)
	require.Equal(t, SCStatusPendingApproval, pending.Status)

	// a second non-management call must not self-approve
	_, err = svc.ApproveSupplierContract(context.Background(), sc.ID, buyer)
	require.True(t, shared.IsKind(err, shared.KindForbidden))

	boss := managementActor()
	released, err := svc.ApproveSupplierContract(context.Background(), sc.ID, boss)
	require.NoError(t, err)
	require.Equal(t, SCStatusSentToSupplier, released.Status)
	require.Equal(t, boss.ActorID, released.ApprovedBy)
}

func TestApproveRefusedOutsideDraftOrPending(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	sc, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID: uuid.New(), ContractValue: 12_000,
	}, actor)
	require.NoError(t, err)

	approved, err := svc.ApproveSupplierContract(context.Background(), sc.ID, actor)
	require.NoError(t, err)

	_, err = svc.ApproveSupplierContract(context.Background(), approved.ID, actor)
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestSignSupplierContractRecordsBothParties(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	actor := procurementActor()

	sc, err := svc.CreateSupplierContract(context.Background(), SupplierContractInput{
		SupplierID: uuid.New(), ContractValue: 12_000,
	}, actor)
	require.NoError(t, err)

	signed, err := svc.SignSupplierContract(context.Background(), sc.ID, actor)
	require.NoError(t, err)
	require.Equal(t, SCStatusSigned, signed.Status)
	require.True(t, signed.SignedByUs)
	require.True(t, signed.SignedBySupplier)
	require.NotNil(t, signed.SignedDate)
}
