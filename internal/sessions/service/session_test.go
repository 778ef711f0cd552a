package service

import (
	"context"
	"testing"
	"time"

	"keyring/internal/sessions/events"
	"keyring/internal/sessions/repository"
	"keyring/internal/sessions/validator"
	"keyring/pkg/clock"
	"keyring/pkg/config"
	mongotx "keyring/pkg/db/mongo"
	apperrors "keyring/pkg/errors"
	"keyring/pkg/logger"
	"keyring/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Mock repositories for testing
type mockSessionRepository struct {
	createFunc                     func(ctx context.Context, session *model.Session) error
	countActiveByToolFunc          func(ctx context.Context, toolID string) (int64, error)
	countActiveByToolAndHolderFunc func(ctx context.Context, toolID, holder string) (int64, error)
	activeCountsByToolFunc         func(ctx context.Context) (map[string]int64, error)
	activeToolIDsByHolderFunc      func(ctx context.Context, holder string) (map[string]bool, error)
	completeActiveFunc             func(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error)
	findExpiredActiveFunc          func(ctx context.Context, asOf time.Time, limit int) ([]*model.Session, error)
	completeByIDsFunc              func(ctx context.Context, ids []string, completedAt time.Time) (int64, error)
}

func (m *mockSessionRepository) Create(ctx context.Context, session *model.Session) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	session.ID = "68b000000000000000000099"
	return nil
}

func (m *mockSessionRepository) CountActiveByTool(ctx context.Context, toolID string) (int64, error) {
	if m.countActiveByToolFunc != nil {
		return m.countActiveByToolFunc(ctx, toolID)
	}
	return 0, nil
}

func (m *mockSessionRepository) CountActiveByToolAndHolder(ctx context.Context, toolID, holder string) (int64, error) {
	if m.countActiveByToolAndHolderFunc != nil {
		return m.countActiveByToolAndHolderFunc(ctx, toolID, holder)
	}
	return 0, nil
}

func (m *mockSessionRepository) ActiveCountsByTool(ctx context.Context) (map[string]int64, error) {
	if m.activeCountsByToolFunc != nil {
		return m.activeCountsByToolFunc(ctx)
	}
	return map[string]int64{}, nil
}

func (m *mockSessionRepository) ActiveToolIDsByHolder(ctx context.Context, holder string) (map[string]bool, error) {
	if m.activeToolIDsByHolderFunc != nil {
		return m.activeToolIDsByHolderFunc(ctx, holder)
	}
	return map[string]bool{}, nil
}

func (m *mockSessionRepository) CompleteActive(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error) {
	if m.completeActiveFunc != nil {
		return m.completeActiveFunc(ctx, toolID, holder, completedAt)
	}
	return 0, nil
}

func (m *mockSessionRepository) FindExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*model.Session, error) {
	if m.findExpiredActiveFunc != nil {
		return m.findExpiredActiveFunc(ctx, asOf, limit)
	}
	return []*model.Session{}, nil
}

func (m *mockSessionRepository) CompleteByIDs(ctx context.Context, ids []string, completedAt time.Time) (int64, error) {
	if m.completeByIDsFunc != nil {
		return m.completeByIDsFunc(ctx, ids, completedAt)
	}
	return 0, nil
}

func (m *mockSessionRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockLockRepository struct {
	createFunc func(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error)
	deleteFunc func(ctx context.Context, lockID string) error
}

func (m *mockLockRepository) Create(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, lock)
	}
	return lock, nil
}

func (m *mockLockRepository) Delete(ctx context.Context, lockID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, lockID)
	}
	return nil
}

type mockToolService struct {
	createFunc          func(ctx context.Context, tool *model.Tool, creds *model.Credentials) (*model.Tool, error)
	getByIDFunc         func(ctx context.Context, id string) (*model.Tool, error)
	getAllFunc          func(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error)
	openCredentialsFunc func(tool *model.Tool) (*model.Credentials, error)
}

func (m *mockToolService) Create(ctx context.Context, tool *model.Tool, creds *model.Credentials) (*model.Tool, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, tool, creds)
	}
	return tool, nil
}

func (m *mockToolService) GetByID(ctx context.Context, id string) (*model.Tool, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &model.Tool{ID: id, Name: "Test Tool", Capacity: 2}, nil
}

func (m *mockToolService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error) {
	if m.getAllFunc != nil {
		return m.getAllFunc(ctx, limit, offset)
	}
	return []*model.Tool{}, 0, nil
}

func (m *mockToolService) OpenCredentials(tool *model.Tool) (*model.Credentials, error) {
	if m.openCredentialsFunc != nil {
		return m.openCredentialsFunc(tool)
	}
	return &model.Credentials{Username: "svc-user", Password: "svc-pass"}, nil
}

// recordingPublisher captures lifecycle events for assertions.
type recordingPublisher struct {
	checkedOut []*model.Session
	returned   []struct {
		ToolID string
		Holder string
		Count  int64
	}
	expired []*model.Session
}

func (p *recordingPublisher) SessionCheckedOut(_ context.Context, session *model.Session) {
	p.checkedOut = append(p.checkedOut, session)
}

func (p *recordingPublisher) SessionReturned(_ context.Context, toolID, holder string, count int64, _ time.Time) {
	p.returned = append(p.returned, struct {
		ToolID string
		Holder string
		Count  int64
	}{toolID, holder, count})
}

func (p *recordingPublisher) SessionExpired(_ context.Context, session *model.Session, _ time.Time) {
	p.expired = append(p.expired, session)
}

var _ events.Publisher = (*recordingPublisher)(nil)

const (
	testToolID = "68b0000000000000000000aa"
	testHolder = "casey@example.com"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})

	return &config.Config{
		Log:                    log,
		StoreReadTimeout:       5 * time.Second,
		StoreWriteTimeout:      5 * time.Second,
		CheckoutLockTTL:        10 * time.Second,
		MaxCheckoutDurationMin: 480,
	}
}

func newTestService(
	repo repository.SessionRepository,
	lockRepo repository.CheckoutLockRepository,
	tools *mockToolService,
	publisher events.Publisher,
) SessionService {
	cfg := newTestConfig()
	return NewSessionService(
		repo,
		lockRepo,
		tools,
		validator.NewSessionValidator(cfg.Log),
		publisher,
		clock.NewFixed(testNow),
		cfg,
	)
}

func TestCheckout_Success(t *testing.T) {
	var created *model.Session
	repo := &mockSessionRepository{
		createFunc: func(ctx context.Context, session *model.Session) error {
			session.ID = "68b000000000000000000001"
			created = session
			return nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, publisher)

	resp, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 90,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected session to be created")
	}
	if created.Status != model.SessionStatusActive {
		t.Errorf("expected status ACTIVE, got %s", created.Status)
	}
	if !created.StartTime.Equal(testNow) {
		t.Errorf("expected start time %v, got %v", testNow, created.StartTime)
	}
	wantEnd := testNow.Add(90 * time.Minute)
	if !created.ExpectedEndTime.Equal(wantEnd) {
		t.Errorf("expected end time %v, got %v", wantEnd, created.ExpectedEndTime)
	}

	if resp.Credentials == nil || resp.Credentials.Username != "svc-user" {
		t.Error("expected unsealed credentials in the checkout response")
	}
	if len(publisher.checkedOut) != 1 {
		t.Fatalf("expected 1 checked_out event, got %d", len(publisher.checkedOut))
	}
	if publisher.checkedOut[0].ID != "68b000000000000000000001" {
		t.Errorf("event carries wrong session: %s", publisher.checkedOut[0].ID)
	}
}

func TestCheckout_NoSeatsAvailable(t *testing.T) {
	repo := &mockSessionRepository{
		countActiveByToolFunc: func(ctx context.Context, toolID string) (int64, error) {
			return 2, nil
		},
		createFunc: func(ctx context.Context, session *model.Session) error {
			t.Fatal("session must not be created when the tool is full")
			return nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, publisher)

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeRejected) {
		t.Fatalf("expected REJECTED, got %v", err)
	}
	if len(publisher.checkedOut) != 0 {
		t.Error("no event should be published for a rejected checkout")
	}
}

func TestCheckout_DuplicateHolderRejected(t *testing.T) {
	repo := &mockSessionRepository{
		countActiveByToolAndHolderFunc: func(ctx context.Context, toolID, holder string) (int64, error) {
			return 1, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, &recordingPublisher{})

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeRejected) {
		t.Fatalf("expected REJECTED for duplicate holder, got %v", err)
	}
}

func TestCheckout_ZeroDurationRejectedBeforeStore(t *testing.T) {
	tools := &mockToolService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Tool, error) {
			t.Fatal("store must not be touched for invalid duration")
			return nil, nil
		},
	}
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, tools, &recordingPublisher{})

	for _, duration := range []int{0, -15} {
		_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
			ToolID:          testToolID,
			Holder:          testHolder,
			DurationMinutes: duration,
		})
		if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
			t.Errorf("duration %d: expected INVALID_INPUT, got %v", duration, err)
		}
	}
}

func TestCheckout_DurationAboveMaximum(t *testing.T) {
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, &mockToolService{}, &recordingPublisher{})

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 481,
	})
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCheckout_MalformedToolID(t *testing.T) {
	tools := &mockToolService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Tool, error) {
			t.Fatal("store must not be touched for a malformed tool id")
			return nil, nil
		},
	}
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, tools, &recordingPublisher{})

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          "not-an-object-id",
		Holder:          testHolder,
		DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for malformed tool id, got %v", err)
	}
}

func TestCheckout_LockTimesComeFromClock(t *testing.T) {
	var gotLock *model.CheckoutLock
	lockRepo := &mockLockRepository{
		createFunc: func(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error) {
			gotLock = lock
			return lock, nil
		},
	}
	service := newTestService(&mockSessionRepository{}, lockRepo, &mockToolService{}, &recordingPublisher{})

	if _, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotLock == nil {
		t.Fatal("expected lock to be created")
	}
	if !gotLock.CreatedAt.Equal(testNow) {
		t.Errorf("expected lock created_at %v, got %v", testNow, gotLock.CreatedAt)
	}
	wantExpiry := testNow.Add(10 * time.Second)
	if !gotLock.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected lock expires_at %v, got %v", wantExpiry, gotLock.ExpiresAt)
	}
}

func TestCheckout_ToolNotFound(t *testing.T) {
	tools := &mockToolService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Tool, error) {
			return nil, apperrors.NotFoundWithID("Tool", id)
		},
	}
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, tools, &recordingPublisher{})

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCheckout_LockContention(t *testing.T) {
	lockRepo := &mockLockRepository{
		createFunc: func(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error) {
			return nil, mongo.WriteException{
				WriteErrors: []mongo.WriteError{{Code: 11000}},
			}
		},
	}
	service := newTestService(&mockSessionRepository{}, lockRepo, &mockToolService{}, &recordingPublisher{})

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT on lock contention, got %v", err)
	}
}

func TestCheckout_LockReleasedAfterRejection(t *testing.T) {
	var deleted []string
	lockRepo := &mockLockRepository{
		deleteFunc: func(ctx context.Context, lockID string) error {
			deleted = append(deleted, lockID)
			return nil
		},
	}
	repo := &mockSessionRepository{
		countActiveByToolFunc: func(ctx context.Context, toolID string) (int64, error) {
			return 2, nil
		},
	}
	service := newTestService(repo, lockRepo, &mockToolService{}, &recordingPublisher{})

	_, _ = service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID:          testToolID,
		Holder:          testHolder,
		DurationMinutes: 60,
	})

	if len(deleted) != 1 {
		t.Fatalf("expected lock to be released exactly once, got %d deletes", len(deleted))
	}
	if deleted[0] != "checkout_lock_"+testToolID {
		t.Errorf("unexpected lock ID released: %s", deleted[0])
	}
}

// Capacity 1 sequence: first checkout wins, second holder is rejected,
// after a return the seat opens up again.
func TestCheckout_SingleSeatLifecycle(t *testing.T) {
	active := map[string]string{} // session id -> holder
	nextID := 0

	repo := &mockSessionRepository{
		countActiveByToolFunc: func(ctx context.Context, toolID string) (int64, error) {
			return int64(len(active)), nil
		},
		countActiveByToolAndHolderFunc: func(ctx context.Context, toolID, holder string) (int64, error) {
			var n int64
			for _, h := range active {
				if h == holder {
					n++
				}
			}
			return n, nil
		},
		createFunc: func(ctx context.Context, session *model.Session) error {
			nextID++
			session.ID = "68b00000000000000000000" + string(rune('0'+nextID))
			active[session.ID] = session.Holder
			return nil
		},
		completeActiveFunc: func(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error) {
			var n int64
			for id, h := range active {
				if h == holder {
					delete(active, id)
					n++
				}
			}
			return n, nil
		},
	}
	tools := &mockToolService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Tool, error) {
			return &model.Tool{ID: id, Name: "Single Seat", Capacity: 1}, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, tools, &recordingPublisher{})

	if _, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID: testToolID, Holder: "first@example.com", DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("first checkout should succeed: %v", err)
	}

	_, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID: testToolID, Holder: "second@example.com", DurationMinutes: 60,
	})
	if !apperrors.IsCode(err, apperrors.CodeRejected) {
		t.Fatalf("second checkout should be rejected, got %v", err)
	}

	if _, err := service.Return(context.Background(), &model.ReturnRequest{
		ToolID: testToolID, Holder: "first@example.com",
	}); err != nil {
		t.Fatalf("return should succeed: %v", err)
	}

	if _, err := service.Checkout(context.Background(), &model.CheckoutRequest{
		ToolID: testToolID, Holder: "second@example.com", DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("checkout after return should succeed: %v", err)
	}
}

func TestReturn_IdempotentWithNoActiveSessions(t *testing.T) {
	repo := &mockSessionRepository{
		completeActiveFunc: func(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error) {
			return 0, nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, publisher)

	count, err := service.Return(context.Background(), &model.ReturnRequest{
		ToolID: testToolID,
		Holder: testHolder,
	})
	if err != nil {
		t.Fatalf("return with nothing to complete must succeed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 completed sessions, got %d", count)
	}
	if len(publisher.returned) != 0 {
		t.Error("no event should be published when nothing transitioned")
	}
}

func TestReturn_CompletesAllMatching(t *testing.T) {
	var gotCompletedAt time.Time
	repo := &mockSessionRepository{
		completeActiveFunc: func(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error) {
			gotCompletedAt = completedAt
			return 2, nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, publisher)

	count, err := service.Return(context.Background(), &model.ReturnRequest{
		ToolID: testToolID,
		Holder: testHolder,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 completed sessions, got %d", count)
	}
	if !gotCompletedAt.Equal(testNow) {
		t.Errorf("expected completed_at %v, got %v", testNow, gotCompletedAt)
	}
	if len(publisher.returned) != 1 || publisher.returned[0].Count != 2 {
		t.Errorf("expected one returned event with count 2, got %+v", publisher.returned)
	}
}

func TestReturn_UnknownToolIsStillSuccess(t *testing.T) {
	tools := &mockToolService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Tool, error) {
			t.Fatal("return must not require the tool to exist")
			return nil, nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, tools, publisher)

	count, err := service.Return(context.Background(), &model.ReturnRequest{
		ToolID: testToolID,
		Holder: testHolder,
	})
	if err != nil {
		t.Fatalf("return against an unknown tool must be a no-op success: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 completed sessions, got %d", count)
	}
	if len(publisher.returned) != 0 {
		t.Error("no event should be published")
	}
}

func TestReturn_MalformedToolID(t *testing.T) {
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, &mockToolService{}, &recordingPublisher{})

	_, err := service.Return(context.Background(), &model.ReturnRequest{
		ToolID: "not-an-object-id",
		Holder: testHolder,
	})
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestMergedToolView_SeatMath(t *testing.T) {
	toolA := "68b0000000000000000000aa"
	toolB := "68b0000000000000000000bb"
	tools := &mockToolService{
		getAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error) {
			return []*model.Tool{
				{ID: toolA, Name: "Tool A", Capacity: 2},
				{ID: toolB, Name: "Tool B", Capacity: 3},
			}, 2, nil
		},
	}
	repo := &mockSessionRepository{
		activeCountsByToolFunc: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{toolA: 1}, nil
		},
		activeToolIDsByHolderFunc: func(ctx context.Context, holder string) (map[string]bool, error) {
			if holder == testHolder {
				return map[string]bool{toolA: true}, nil
			}
			return map[string]bool{}, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, tools, &recordingPublisher{})

	views, total, err := service.MergedToolView(context.Background(), testHolder, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(views) != 2 {
		t.Fatalf("expected 2 views, got %d (total %d)", len(views), total)
	}

	if views[0].ActiveSessions != 1 || views[0].AvailableSeats != 1 {
		t.Errorf("tool A: expected active=1 available=1, got active=%d available=%d",
			views[0].ActiveSessions, views[0].AvailableSeats)
	}
	if !views[0].IHaveKey {
		t.Error("tool A: caller holds a session, i_have_key should be true")
	}
	if views[1].ActiveSessions != 0 || views[1].AvailableSeats != 3 {
		t.Errorf("tool B: expected active=0 available=3, got active=%d available=%d",
			views[1].ActiveSessions, views[1].AvailableSeats)
	}
	if views[1].IHaveKey {
		t.Error("tool B: caller holds nothing, i_have_key should be false")
	}
}

func TestMergedToolView_AvailabilityClampedAtZero(t *testing.T) {
	tools := &mockToolService{
		getAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error) {
			return []*model.Tool{{ID: testToolID, Name: "Shrunk", Capacity: 1}}, 1, nil
		},
	}
	repo := &mockSessionRepository{
		activeCountsByToolFunc: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{testToolID: 3}, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, tools, &recordingPublisher{})

	views, _, err := service.MergedToolView(context.Background(), testHolder, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if views[0].AvailableSeats != 0 {
		t.Errorf("expected available seats clamped to 0, got %d", views[0].AvailableSeats)
	}
}

func TestMergedToolView_AnonymousCaller(t *testing.T) {
	tools := &mockToolService{
		getAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error) {
			return []*model.Tool{{ID: testToolID, Name: "Tool A", Capacity: 2}}, 1, nil
		},
	}
	repo := &mockSessionRepository{
		activeCountsByToolFunc: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{testToolID: 1}, nil
		},
		activeToolIDsByHolderFunc: func(ctx context.Context, holder string) (map[string]bool, error) {
			t.Error("holder query must be skipped for anonymous callers")
			return nil, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, tools, &recordingPublisher{})

	views, total, err := service.MergedToolView(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatalf("anonymous listing must succeed: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("expected 1 view, got %d (total %d)", len(views), total)
	}
	if views[0].IHaveKey {
		t.Error("anonymous caller can never hold a key")
	}
	if views[0].ActiveSessions != 1 || views[0].AvailableSeats != 1 {
		t.Errorf("seat usage must still be live: active=%d available=%d",
			views[0].ActiveSessions, views[0].AvailableSeats)
	}
}

func TestActiveCount(t *testing.T) {
	repo := &mockSessionRepository{
		countActiveByToolFunc: func(ctx context.Context, toolID string) (int64, error) {
			return 4, nil
		},
	}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, &recordingPublisher{})

	count, err := service.ActiveCount(context.Background(), testToolID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4, got %d", count)
	}
}

func TestExpireOverdue(t *testing.T) {
	overdue := []*model.Session{
		{ID: "68b000000000000000000001", ToolID: testToolID, Holder: testHolder, Status: model.SessionStatusActive},
		{ID: "68b000000000000000000002", ToolID: testToolID, Holder: "other@example.com", Status: model.SessionStatusActive},
	}
	var completedIDs []string
	repo := &mockSessionRepository{
		findExpiredActiveFunc: func(ctx context.Context, asOf time.Time, limit int) ([]*model.Session, error) {
			if !asOf.Equal(testNow) {
				t.Errorf("expected cutoff %v, got %v", testNow, asOf)
			}
			return overdue, nil
		},
		completeByIDsFunc: func(ctx context.Context, ids []string, completedAt time.Time) (int64, error) {
			completedIDs = ids
			return int64(len(ids)), nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestService(repo, &mockLockRepository{}, &mockToolService{}, publisher)

	count, err := service.ExpireOverdue(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 expired, got %d", count)
	}
	if len(completedIDs) != 2 {
		t.Errorf("expected both sessions completed, got %v", completedIDs)
	}
	if len(publisher.expired) != 2 {
		t.Errorf("expected 2 expired events, got %d", len(publisher.expired))
	}
}

func TestExpireOverdue_NothingToDo(t *testing.T) {
	publisher := &recordingPublisher{}
	service := newTestService(&mockSessionRepository{}, &mockLockRepository{}, &mockToolService{}, publisher)

	count, err := service.ExpireOverdue(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
	if len(publisher.expired) != 0 {
		t.Error("no events expected")
	}
}
