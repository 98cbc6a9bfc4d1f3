package suppliers

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

type memorySupplierRepo struct {
	suppliers map[uuid.UUID]Supplier
	history   map[uuid.UUID][]RatingEntry
}

func newMemorySupplierRepo() *memorySupplierRepo {
	return &memorySupplierRepo{
		suppliers: make(map[uuid.UUID]Supplier),
		history:   make(map[uuid.UUID][]RatingEntry),
	}
}

func (r *memorySupplierRepo) Get(ctx context.Context, id uuid.UUID) (Supplier, error) {
	sup, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, shared.NotFoundf("supplier %s not found", id)
	}
	return sup, nil
}

func (r *memorySupplierRepo) Create(ctx context.Context, s Supplier) error {
	r.suppliers[s.ID] = s
	return nil
}

func (r *memorySupplierRepo) Update(ctx context.Context, s Supplier, expectedRevision uuid.UUID) error {
	current, ok := r.suppliers[s.ID]
	if !ok {
		return shared.NotFoundf("supplier %s not found", s.ID)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("supplier %s was modified concurrently", s.ID)
	}
	r.suppliers[s.ID] = s
	return nil
}

func (r *memorySupplierRepo) AppendRatingEntry(ctx context.Context, e RatingEntry) error {
	r.history[e.SupplierID] = append(r.history[e.SupplierID], e)
	return nil
}

func (r *memorySupplierRepo) ListRatingHistory(ctx context.Context, supplierID uuid.UUID, limit int) ([]RatingEntry, error) {
	entries := r.history[supplierID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]RatingEntry(nil), entries...), nil
}

type stubNotifier struct {
	sent []notify.Message
}

func (n *stubNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func testIdentity(roles ...string) shared.Identity {
	return shared.Identity{ActorID: uuid.New(), Email: "ops@vantage.test", Roles: roles}
}

func newTestService(t *testing.T) (*Service, *memorySupplierRepo, *stubNotifier) {
	t.Helper()
	repo := newMemorySupplierRepo()
	notifier := &stubNotifier{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	svc := NewService(repo, notifier, nil, nil, nil, logger, "procurement-ops@vantage.test")
	return svc, repo, notifier
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func seedSupplier(t *testing.T, repo *memorySupplierRepo, status Status) Supplier {
	t.Helper()
	sup := Supplier{
		DocMeta: shared.NewDocMeta(uuid.New(), time.Now()),
		Code:    "SUP-1",
		Name:    "Nordbau GmbH",
		Status:  status,
	}
	require.NoError(t, repo.Create(context.Background(), sup))
	return sup
}

func TestApproveFromPending(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	sup := seedSupplier(t, repo, StatusPendingApproval)

	got, err := svc.Approve(context.Background(), sup.ID, testIdentity(shared.RoleManagement))
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.ApprovedAt)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "procurement-ops@vantage.test", notifier.sent[0].To)
}

func TestApproveRejectedSupplierFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusRejected)

	_, err := svc.Approve(context.Background(), sup.ID, testIdentity(shared.RoleManagement))
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestBlacklistRequiresZeroActiveProjects(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)
	sup.ActiveProjectCount = 1
	repo.suppliers[sup.ID] = sup

	_, err := svc.Blacklist(context.Background(), sup.ID, testIdentity(shared.RoleManagement),
		"repeated late deliveries and refusal to honour warranty claims")
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
	require.Equal(t, StatusActive, repo.suppliers[sup.ID].Status)
}

func TestBlacklistRequiresSubstantialReason(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)

	_, err := svc.Blacklist(context.Background(), sup.ID, testIdentity(shared.RoleManagement), "  too short  ")
	require.True(t, shared.IsKind(err, shared.KindBadRequest))

	got, err := svc.Blacklist(context.Background(), sup.ID, testIdentity(shared.RoleManagement),
		"repeated late deliveries and refusal to honour warranty claims")
	require.NoError(t, err)
	require.Equal(t, StatusBlacklisted, got.Status)
}

func TestReinstateLandsInactive(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusBlacklisted)

	got, err := svc.Reinstate(context.Background(), sup.ID, testIdentity(shared.RoleManagement))
	require.NoError(t, err)
	require.Equal(t, StatusInactive, got.Status)

	// Re-approval is a separate step; reinstatement never restores ACTIVE.
	_, err = svc.Reinstate(context.Background(), sup.ID, testIdentity(shared.RoleManagement))
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestSubmitRatingIncrementalMean(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)
	actor := testIdentity(shared.RoleProjectLead)
	ctx := context.Background()

	for _, q := range []float64{5, 4, 3} {
		_, err := svc.SubmitRating(ctx, sup.ID, RatingDims{Quality: q, Reliability: 4, Communication: 4, PriceValue: 4}, "", actor)
		require.NoError(t, err)
	}

	got := repo.suppliers[sup.ID]
	require.Equal(t, 3, got.Rating.ReviewCount)
	require.InDelta(t, 4.0, got.Rating.Quality, 0.001)
	require.Len(t, repo.history[sup.ID], 3)
}

func TestSubmitRatingLowOverallAlerts(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)

	_, err := svc.SubmitRating(context.Background(), sup.ID,
		RatingDims{Quality: 2, Reliability: 2, Communication: 2, PriceValue: 2}, "poor workmanship", testIdentity(shared.RoleProjectLead))
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Contains(t, notifier.sent[0].Subject, "Low supplier rating")
}

func TestSubmitRatingOverallWeights(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)

	got, err := svc.SubmitRating(context.Background(), sup.ID,
		RatingDims{Quality: 5, Reliability: 4, Communication: 3, PriceValue: 2}, "", testIdentity(shared.RoleProjectLead))
	require.NoError(t, err)
	// 5*0.3 + 4*0.3 + 3*0.2 + 2*0.2 = 3.7
	require.InDelta(t, 3.7, got.Rating.Overall, 0.001)
}

func TestDecrementNeverBelowZero(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sup := seedSupplier(t, repo, StatusActive)
	actor := testIdentity(shared.RoleProjectLead)
	ctx := context.Background()

	require.NoError(t, svc.IncrementActiveProjects(ctx, sup.ID, actor))
	require.Equal(t, 1, repo.suppliers[sup.ID].ActiveProjectCount)

	require.NoError(t, svc.DecrementActiveProjects(ctx, sup.ID, actor))
	require.NoError(t, svc.DecrementActiveProjects(ctx, sup.ID, actor))
	require.Equal(t, 0, repo.suppliers[sup.ID].ActiveProjectCount)
}

func TestAlertGateDeduplicates(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	gate := NewAlertGate(client, time.Hour, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	id := uuid.New()
	require.True(t, gate.ShouldAlert(context.Background(), id))
	require.False(t, gate.ShouldAlert(context.Background(), id))

	srv.FastForward(2 * time.Hour)
	require.True(t, gate.ShouldAlert(context.Background(), id))
}
