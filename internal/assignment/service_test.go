package assignment

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
)

type memoryAssignmentRepo struct {
	assignments map[uuid.UUID]Assignment
}

func newMemoryAssignmentRepo() *memoryAssignmentRepo {
	return &memoryAssignmentRepo{assignments: make(map[uuid.UUID]Assignment)}
}

func (r *memoryAssignmentRepo) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	a, ok := r.assignments[id]
	if !ok {
		return Assignment{}, shared.NotFoundf("assignment %s not found", id)
	}
	return a, nil
}

func (r *memoryAssignmentRepo) Create(ctx context.Context, a Assignment) error {
	r.assignments[a.ID] = a
	return nil
}

func (r *memoryAssignmentRepo) Update(ctx context.Context, a Assignment, expectedRevision uuid.UUID) error {
	current, ok := r.assignments[a.ID]
	if !ok {
		return shared.NotFoundf("assignment %s not found", a.ID)
	}
	if current.Revision != expectedRevision {
		return shared.Conflictf("assignment %s was modified concurrently", a.ID)
	}
	r.assignments[a.ID] = a
	return nil
}

type stubLedger struct {
	byID       map[uuid.UUID]suppliers.Supplier
	increments int
	decrements int
	ratings    []suppliers.RatingDims
}

func (l *stubLedger) RequireActive(ctx context.Context, id uuid.UUID) (suppliers.Supplier, error) {
	sup, ok := l.byID[id]
	if !ok {
		return suppliers.Supplier{}, shared.NotFoundf("supplier %s not found", id)
	}
	if sup.Status != suppliers.StatusActive {
		return suppliers.Supplier{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "supplier is not active",
			Current: string(sup.Status),
			Allowed: []string{string(suppliers.StatusActive)},
		}
	}
	return sup, nil
}

func (l *stubLedger) IncrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error {
	l.increments++
	return nil
}

func (l *stubLedger) DecrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error {
	l.decrements++
	return nil
}

func (l *stubLedger) SubmitRating(ctx context.Context, id uuid.UUID, dims suppliers.RatingDims, feedback string, actor shared.Identity) (suppliers.Supplier, error) {
	l.ratings = append(l.ratings, dims)
	return l.byID[id], nil
}

type stubProjects struct {
	byID map[uuid.UUID]masterdata.Project
}

func (p *stubProjects) GetProject(ctx context.Context, id uuid.UUID) (masterdata.Project, error) {
	project, ok := p.byID[id]
	if !ok {
		return masterdata.Project{}, shared.NotFoundf("project %s not found", id)
	}
	return project, nil
}

type memoryIdem struct {
	claimed map[string]bool
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

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type fixture struct {
	svc        *Service
	repo       *memoryAssignmentRepo
	ledger     *stubLedger
	projects   *stubProjects
	supplierID uuid.UUID
	projectID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryAssignmentRepo(),
		ledger:   &stubLedger{byID: make(map[uuid.UUID]suppliers.Supplier)},
		projects: &stubProjects{byID: make(map[uuid.UUID]masterdata.Project)},
	}
	f.supplierID = uuid.New()
	f.ledger.byID[f.supplierID] = suppliers.Supplier{
		DocMeta: shared.NewDocMeta(uuid.New(), time.Now()),
		Name:    "Acme Drilling",
		Status:  suppliers.StatusActive,
	}
	f.projectID = uuid.New()
	f.projects.byID[f.projectID] = masterdata.Project{
		ID: f.projectID, Name: "Harbour extension", Budget: 100_000, ActualTotalCost: 40_000,
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.svc = NewService(f.repo, f.ledger, f.projects, &memoryIdem{claimed: make(map[string]bool)}, nil, logger)
	return f
}

func lead() shared.Identity {
	return shared.Identity{ActorID: uuid.New(), Email: "lead@example.com", Roles: []string{shared.RoleProjectLead}}
}

func (f *fixture) assign(t *testing.T, estimated float64) Assignment {
	t.Helper()
	a, err := f.svc.Assign(context.Background(), AssignInput{
		ProjectID: f.projectID, SupplierID: f.supplierID, EstimatedCost: estimated,
	}, lead())
	require.NoError(t, err)
	return a
}

func TestAssignCreatesPlannedAndIncrementsCounter(t *testing.T) {
	f := newFixture(t)

	a := f.assign(t, 20_000)
	require.Equal(t, StatusPlanned, a.Status)
	require.Equal(t, 0.0, a.CompletionPercentage)
	require.Equal(t, BudgetOnTrack, a.BudgetStatus)
	require.Equal(t, 1, f.ledger.increments)
}

func TestAssignOverBudgetWarnsButSucceeds(t *testing.T) {
	f := newFixture(t)

	// remaining budget is 60 000
	a := f.assign(t, 65_000)
	require.Equal(t, BudgetWarning, a.BudgetStatus)
	require.Equal(t, 1, f.ledger.increments)
}

func TestAssignRejectsInactiveSupplier(t *testing.T) {
	f := newFixture(t)
	sup := f.ledger.byID[f.supplierID]
	sup.Status = suppliers.StatusBlacklisted
	f.ledger.byID[f.supplierID] = sup

	_, err := f.svc.Assign(context.Background(), AssignInput{
		ProjectID: f.projectID, SupplierID: f.supplierID, EstimatedCost: 10_000,
	}, lead())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
	require.Zero(t, f.ledger.increments)
}

func TestUpdateProgressMovesPlannedToInProgress(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 20_000)

	completion := 40.0
	updated, err := f.svc.Update(context.Background(), a.ID, UpdateInput{CompletionPercentage: &completion}, lead())
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, updated.Status)
	require.Equal(t, 40.0, updated.CompletionPercentage)
}

func TestUpdateCompletionDecrementsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 20_000)

	completion := 100.0
	done, err := f.svc.Update(context.Background(), a.ID, UpdateInput{CompletionPercentage: &completion}, lead())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 1, f.ledger.decrements)

	// a repeated completion write must not decrement again
	desc := "punch list closed"
	_, err = f.svc.Update(context.Background(), a.ID, UpdateInput{Description: &desc, CompletionPercentage: &completion}, lead())
	require.NoError(t, err)
	require.Equal(t, 1, f.ledger.decrements)
}

func TestUpdateRejectsIllegalExplicitTransition(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 20_000)

	completion := 100.0
	_, err := f.svc.Update(context.Background(), a.ID, UpdateInput{CompletionPercentage: &completion}, lead())
	require.NoError(t, err)

	status := StatusPlanned
	_, err = f.svc.Update(context.Background(), a.ID, UpdateInput{Status: &status}, lead())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestRateRequiresCompletion(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 20_000)

	_, err := f.svc.Rate(context.Background(), a.ID, RateInput{Quality: 5, Timeliness: 4, Communication: 5}, lead())
	require.True(t, shared.IsKind(err, shared.KindBadRequest))
}

func TestRateDerivesPriceRatingFromCostRatio(t *testing.T) {
	cases := []struct {
		name     string
		actual   *float64
		expected float64
	}{
		{"on budget", ptr(20_000.0), 5},
		{"slightly over", ptr(21_500.0), 4},
		{"well over", ptr(26_000.0), 3},
		{"missing actual cost", nil, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.assign(t, 20_000)

			completion := 100.0
			_, err := f.svc.Update(context.Background(), a.ID, UpdateInput{
				CompletionPercentage: &completion, ActualCost: tc.actual,
			}, lead())
			require.NoError(t, err)

			rated, err := f.svc.Rate(context.Background(), a.ID, RateInput{Quality: 5, Timeliness: 4, Communication: 3}, lead())
			require.NoError(t, err)
			require.Equal(t, tc.expected, *rated.PriceRating)

			require.Len(t, f.ledger.ratings, 1)
			dims := f.ledger.ratings[0]
			require.Equal(t, 5.0, dims.Quality)
			require.Equal(t, 4.0, dims.Reliability, "timeliness feeds reliability")
			require.Equal(t, 3.0, dims.Communication)
			require.Equal(t, tc.expected, dims.PriceValue)
		})
	}
}

func TestRateIsOneShot(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 20_000)

	completion := 100.0
	_, err := f.svc.Update(context.Background(), a.ID, UpdateInput{CompletionPercentage: &completion}, lead())
	require.NoError(t, err)

	_, err = f.svc.Rate(context.Background(), a.ID, RateInput{Quality: 5, Timeliness: 4, Communication: 3}, lead())
	require.NoError(t, err)

	_, err = f.svc.Rate(context.Background(), a.ID, RateInput{Quality: 1, Timeliness: 1, Communication: 1}, lead())
	require.True(t, shared.IsKind(err, shared.KindConflict))
	require.Len(t, f.ledger.ratings, 1)
}

func ptr(v float64) *float64 { return &v }
