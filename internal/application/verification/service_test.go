package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/infrastructure/memory"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, ch domain.Channel, destination, message string) error {
	return m.Called(ctx, ch, destination, message).Error(0)
}

// blockingDispatcher holds every send until release is closed.
type blockingDispatcher struct {
	release chan struct{}
	err     error
	calls   atomic.Int32
}

func (b *blockingDispatcher) Dispatch(ctx context.Context, _ domain.Channel, _, _ string) error {
	b.calls.Add(1)
	select {
	case <-b.release:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockCodeStore struct{ mock.Mock }

func (m *mockCodeStore) Put(ctx context.Context, v *domain.VerificationRecord) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockCodeStore) Consume(ctx context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error) {
	args := m.Called(ctx, subjectID, ch, code, now)
	return args.Bool(0), args.Error(1)
}
func (m *mockCodeStore) Get(ctx context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error) {
	args := m.Called(ctx, subjectID, ch)
	v, _ := args.Get(0).(*domain.VerificationRecord)
	return v, args.Error(1)
}

// --- helpers ---

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   Service
	store *memory.VerificationStore
	users *memory.UserDirectory
	clk   *clock.Fake
}

func newFixture(t *testing.T, d dispatcher) *fixture {
	t.Helper()
	phone := "+15550100"
	f := &fixture{
		store: memory.NewVerificationStore(),
		users: memory.NewUserDirectory(),
		clk:   clock.NewFake(t0),
	}
	require.NoError(t, f.users.Put(context.Background(), &domain.User{
		UserID: "u1", Email: "u1@example.com", Phone: &phone, Role: domain.RoleUser,
	}))
	require.NoError(t, f.users.Put(context.Background(), &domain.User{
		UserID: "u2", Email: "u2@example.com", Role: domain.RoleUser,
	}))
	f.svc = NewService(ServiceDeps{
		Store:        f.store,
		Users:        f.users,
		Dispatcher:   d,
		Clock:        f.clk,
		CodeTTL:      10 * time.Minute,
		DispatchWait: 200 * time.Millisecond,
		ExposeCodes:  true,
	})
	return f
}

func okDispatcher() *mockDispatcher {
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return d
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

// --- RequestCode ---

func TestRequestCode_StoresAndSends(t *testing.T) {
	d := okDispatcher()
	f := newFixture(t, d)

	res, err := f.svc.RequestCode(context.Background(), "u1", domain.ChannelEmail)

	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, res.Delivery)
	assert.Equal(t, t0.Add(10*time.Minute), res.ExpiresAt)
	assert.Len(t, res.Code, 6)

	rec, err := f.store.Get(context.Background(), "u1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, res.Code, rec.Code)
	d.AssertCalled(t, "Dispatch", mock.Anything, domain.ChannelEmail, "u1@example.com",
		mock.MatchedBy(func(msg string) bool { return strings.Contains(msg, res.Code) }))
}

func TestRequestCode_PhoneGoesToPhoneNumber(t *testing.T) {
	d := okDispatcher()
	f := newFixture(t, d)

	_, err := f.svc.RequestCode(context.Background(), "u1", domain.ChannelPhone)

	require.NoError(t, err)
	d.AssertCalled(t, "Dispatch", mock.Anything, domain.ChannelPhone, "+15550100", mock.Anything)
}

func TestRequestCode_HidesCodeByDefault(t *testing.T) {
	f := newFixture(t, okDispatcher())
	svc := NewService(ServiceDeps{Store: f.store, Users: f.users, Dispatcher: okDispatcher(), Clock: f.clk})

	res, err := svc.RequestCode(context.Background(), "u1", domain.ChannelEmail)

	require.NoError(t, err)
	assert.Empty(t, res.Code)
}

func TestRequestCode_UnknownUser(t *testing.T) {
	f := newFixture(t, okDispatcher())

	_, err := f.svc.RequestCode(context.Background(), "ghost", domain.ChannelEmail)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, f.store.Len())
}

func TestRequestCode_NoDestination(t *testing.T) {
	f := newFixture(t, okDispatcher())

	_, err := f.svc.RequestCode(context.Background(), "u2", domain.ChannelPhone)

	assert.True(t, errors.Is(err, domain.ErrNoDestination))
	assert.Zero(t, f.store.Len())
}

func TestRequestCode_StoreFailureSkipsDispatch(t *testing.T) {
	f := newFixture(t, nil)
	store := &mockCodeStore{}
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("table unavailable"))
	d := &mockDispatcher{}
	svc := NewService(ServiceDeps{Store: store, Users: f.users, Dispatcher: d, Clock: f.clk})

	_, err := svc.RequestCode(context.Background(), "u1", domain.ChannelEmail)

	require.Error(t, err)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestCode_SupersedesPreviousCode(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()

	first, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	var second *Result
	// Codes are random; retry until the two differ so the check is meaningful.
	for {
		second, err = f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
		require.NoError(t, err)
		if second.Code != first.Code {
			break
		}
	}

	assert.Equal(t, 1, f.store.Len())
	assert.ErrorIs(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, first.Code), domain.ErrInvalidOrExpiredCode)
	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, second.Code))
}

func TestRequestCode_DispatchFailureKeepsCode(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: connection refused"))
	f := newFixture(t, d)
	ctx := context.Background()

	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDispatchFailed))
	assert.NotContains(t, err.Error(), "smtp")
	require.NotNil(t, res)
	assert.Equal(t, domain.DeliveryFailed, res.Delivery)
	assert.Equal(t, 1, f.store.Len())

	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code))
	assert.True(t, f.user(t, "u1").EmailVerified)
}

func TestRequestCode_SlowDispatchReportsPending(t *testing.T) {
	d := &blockingDispatcher{release: make(chan struct{})}
	f := newFixture(t, d)
	svc := NewService(ServiceDeps{
		Store: f.store, Users: f.users, Dispatcher: d, Clock: f.clk,
		DispatchWait: 20 * time.Millisecond, ExposeCodes: true,
	})

	res, err := svc.RequestCode(context.Background(), "u1", domain.ChannelEmail)
	close(d.release)

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPending, res.Delivery)
	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.VerifyCode(context.Background(), "u1", domain.ChannelEmail, res.Code))
}

func TestRequestCode_DispatchOutlivesCancelledRequest(t *testing.T) {
	d := &blockingDispatcher{release: make(chan struct{})}
	f := newFixture(t, d)
	svc := NewService(ServiceDeps{
		Store: f.store, Users: f.users, Dispatcher: d, Clock: f.clk,
		DispatchWait: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())

	res, err := svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	cancel()

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPending, res.Delivery)
	close(d.release)
}

// --- VerifyCode ---

func TestVerifyCode_SetsFlagAndIsSingleUse(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()
	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelPhone)
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelPhone, res.Code))
	u := f.user(t, "u1")
	assert.True(t, u.PhoneVerified)
	assert.False(t, u.EmailVerified)

	err = f.svc.VerifyCode(ctx, "u1", domain.ChannelPhone, res.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode)
}

func TestVerifyCode_WrongCodeLeavesRecord(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()
	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	wrong := "000000"
	if res.Code == wrong {
		wrong = "000001"
	}

	assert.ErrorIs(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, wrong), domain.ErrInvalidOrExpiredCode)
	assert.False(t, f.user(t, "u1").EmailVerified)
	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code))
}

func TestVerifyCode_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr bool
	}{
		{"just before expiry", 10*time.Minute - time.Second, false},
		{"at expiry", 10 * time.Minute, true},
		{"after expiry", 11 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, okDispatcher())
			ctx := context.Background()
			res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
			require.NoError(t, err)

			f.clk.Advance(tt.advance)
			err = f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code)

			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode)
				assert.False(t, f.user(t, "u1").EmailVerified)
			} else {
				require.NoError(t, err)
				assert.True(t, f.user(t, "u1").EmailVerified)
			}
		})
	}
}

func TestVerifyCode_ChannelsAreIndependent(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()
	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelPhone, res.Code), domain.ErrInvalidOrExpiredCode)
	assert.ErrorIs(t, f.svc.VerifyCode(ctx, "u2", domain.ChannelEmail, res.Code), domain.ErrInvalidOrExpiredCode)
	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code))
}

func TestVerifyCode_MalformedCodeSkipsStore(t *testing.T) {
	f := newFixture(t, nil)
	store := &mockCodeStore{}
	svc := NewService(ServiceDeps{Store: store, Users: f.users, Dispatcher: okDispatcher(), Clock: f.clk})

	for _, code := range []string{"", "12345", "1234567", "12a456", " 12345"} {
		err := svc.VerifyCode(context.Background(), "u1", domain.ChannelEmail, code)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode, code)
	}
	store.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_StoreError(t *testing.T) {
	f := newFixture(t, nil)
	store := &mockCodeStore{}
	store.On("Consume", mock.Anything, "u1", domain.ChannelEmail, "123456", t0).Return(false, errors.New("throttled"))
	svc := NewService(ServiceDeps{Store: store, Users: f.users, Dispatcher: okDispatcher(), Clock: f.clk})

	err := svc.VerifyCode(context.Background(), "u1", domain.ChannelEmail, "123456")

	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidOrExpiredCode))
}

func TestVerifyCode_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()
	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	var ok atomic.Int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code) == nil {
				ok.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.True(t, f.user(t, "u1").EmailVerified)
}

// --- Status ---

func TestStatus_FollowsCodeLifecycle(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()

	st, err := f.svc.Status(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, &Status{Channel: domain.ChannelEmail}, st)

	res, err := f.svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	st, err = f.svc.Status(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.False(t, st.Verified)
	require.NotNil(t, st.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(*st.ExpiresAt))
	assert.Equal(t, res.Code, st.Code)

	require.NoError(t, f.svc.VerifyCode(ctx, "u1", domain.ChannelEmail, res.Code))
	st, err = f.svc.Status(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, st.Verified)
	assert.False(t, st.Pending)
	assert.Nil(t, st.ExpiresAt)
}

func TestStatus_ExpiredCodeIsNotPending(t *testing.T) {
	f := newFixture(t, okDispatcher())
	ctx := context.Background()
	_, err := f.svc.RequestCode(ctx, "u1", domain.ChannelPhone)
	require.NoError(t, err)

	f.clk.Advance(10 * time.Minute)
	st, err := f.svc.Status(ctx, "u1", domain.ChannelPhone)

	require.NoError(t, err)
	assert.False(t, st.Pending)
	assert.Empty(t, st.Code)
}

func TestStatus_HidesCodeByDefault(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewService(ServiceDeps{Store: f.store, Users: f.users, Dispatcher: okDispatcher(), Clock: f.clk})
	ctx := context.Background()
	_, err := svc.RequestCode(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)

	st, err := svc.Status(ctx, "u1", domain.ChannelEmail)

	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.Empty(t, st.Code)
}

func TestStatus_Errors(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Status(context.Background(), "ghost", domain.ChannelEmail)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	store := &mockCodeStore{}
	store.On("Get", mock.Anything, "u1", domain.ChannelEmail).Return(nil, errors.New("throttled"))
	svc := NewService(ServiceDeps{Store: store, Users: f.users, Dispatcher: okDispatcher(), Clock: f.clk})
	_, err = svc.Status(context.Background(), "u1", domain.ChannelEmail)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestMessage(t *testing.T) {
	sms := message(domain.ChannelPhone, "042137", 10*time.Minute)
	assert.Contains(t, sms, "042137")
	assert.Contains(t, sms, "10 min")

	mail := message(domain.ChannelEmail, "042137", 5*time.Minute)
	assert.Contains(t, mail, "042137")
	assert.Contains(t, mail, "5 minutes")
}
