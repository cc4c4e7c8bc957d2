package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/friendsincode/keygate/internal/account"
	"github.com/friendsincode/keygate/internal/auth"
	"github.com/friendsincode/keygate/internal/clock"
	"github.com/friendsincode/keygate/internal/config"
	"github.com/friendsincode/keygate/internal/db"
	"github.com/friendsincode/keygate/internal/events"
	"github.com/friendsincode/keygate/internal/license"
	"github.com/friendsincode/keygate/internal/models"
)

var (
	t0         = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	signingKey = []byte("session-test-key")
)

func TestEvaluate(t *testing.T) {
	past := t0.Add(-time.Second)
	future := t0.Add(time.Hour)

	tests := []struct {
		name      string
		acct      models.Account
		corrected bool
	}{
		{"inactive", models.Account{ID: "a"}, false},
		{"active without expiration", models.Account{ID: "a", Active: true}, false},
		{"active in the future", models.Account{ID: "a", Active: true, Expiration: &future}, false},
		{"active exactly at expiration", models.Account{ID: "a", Active: true, Expiration: &t0}, false},
		{"active past expiration", models.Account{ID: "a", Active: true, Expiration: &past}, true},
		{"inactive with stale expiration", models.Account{ID: "a", Expiration: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrected := Evaluate(tt.acct, t0)
			if corrected != tt.corrected {
				t.Fatalf("corrected = %v, want %v", corrected, tt.corrected)
			}
			if !corrected {
				if got.Active != tt.acct.Active || got.Expiration != tt.acct.Expiration {
					t.Fatalf("uncorrected account changed: %+v", got)
				}
				return
			}
			if got.Active || got.Expiration != nil {
				t.Fatalf("expected inactive account without expiration, got %+v", got)
			}
			if !tt.acct.Active {
				t.Fatal("Evaluate must not mutate its argument")
			}
		})
	}
}

type fixture struct {
	gate     *Gate
	licenses *license.Service
	accounts *account.Service
	db       *gorm.DB
	clock    *clock.Manual
	bus      *events.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	database, err := db.Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	require.NoError(t, db.Migrate(database))

	clk := clock.NewManual(t0)
	bus := events.NewBus()
	accounts := account.NewService(database, bus, zerolog.Nop())
	return fixture{
		gate:     NewGate(database, accounts, Config{SigningKey: signingKey, TokenTTL: time.Hour}, zerolog.Nop(), WithClock(clk), WithPublisher(bus)),
		licenses: license.NewService(database, license.Config{}, zerolog.Nop(), license.WithClock(clk)),
		accounts: accounts,
		db:       database,
		clock:    clk,
		bus:      bus,
	}
}

func (f fixture) setAccess(t *testing.T, id string, active bool, expiration *time.Time) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Account{}).Where("id = ?", id).
		Updates(map[string]any{"active": active, "expiration": expiration}).Error)
}

func TestLoginNeverActivated(t *testing.T) {
	f := newFixture(t)
	acct, err := f.accounts.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)

	res, err := f.gate.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsActivation, res.Status)
	assert.Equal(t, acct.ID, res.AccountID)
	assert.Empty(t, res.Token)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)

	_, err = f.gate.Login(context.Background(), "alice", "nope")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, err = f.gate.Login(context.Background(), "bob", "pw")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestLoginActiveIssuesToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acct, err := f.accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	code, err := f.licenses.Create(ctx, 30)
	require.NoError(t, err)
	_, err = f.licenses.Activate(ctx, code.Code, acct.ID)
	require.NoError(t, err)

	res, err := f.gate.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(code.ExpiresAt))

	claims, err := auth.Parse(signingKey, res.Token)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, claims.AccountID)
	assert.True(t, claims.HasRole(auth.RoleAccount))
	assert.False(t, claims.HasRole(auth.RoleOperator))
}

func TestLoginPermanentAccess(t *testing.T) {
	f := newFixture(t)
	acct, err := f.accounts.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)
	f.setAccess(t, acct.ID, true, nil)

	f.clock.Advance(10 * 365 * 24 * time.Hour)
	res, err := f.gate.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	assert.Nil(t, res.ExpiresAt)
	assert.NotEmpty(t, res.Token)
}

func TestLoginExpiresThenNeedsActivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	expired := f.bus.Subscribe(events.EventAccountExpired)

	acct, err := f.accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	code, err := f.licenses.Create(ctx, 1)
	require.NoError(t, err)
	_, err = f.licenses.Activate(ctx, code.Code, acct.ID)
	require.NoError(t, err)

	// Exactly at the expiration instant access still holds.
	f.clock.Set(code.ExpiresAt)
	res, err := f.gate.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)

	f.clock.Advance(time.Microsecond)
	res, err = f.gate.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
	assert.Equal(t, acct.ID, res.AccountID)
	assert.Empty(t, res.Token)

	var stored models.Account
	require.NoError(t, f.db.Where("id = ?", acct.ID).Take(&stored).Error)
	assert.False(t, stored.Active)
	assert.Nil(t, stored.Expiration)

	select {
	case payload := <-expired:
		assert.Equal(t, acct.ID, payload["account_id"])
	default:
		t.Fatal("expected account.expired event")
	}

	res, err = f.gate.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsActivation, res.Status)

	// A new code reactivates the account.
	next, err := f.licenses.Create(ctx, 30)
	require.NoError(t, err)
	_, err = f.licenses.Activate(ctx, next.Code, acct.ID)
	require.NoError(t, err)
	res, err = f.gate.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
}

func TestConcurrentLoginsCorrectOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acct, err := f.accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	past := t0.Add(-time.Hour)
	f.setAccess(t, acct.ID, true, &past)

	var expiredCount, needsCount atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			res, err := f.gate.Login(ctx, "alice", "pw")
			if err != nil {
				return err
			}
			switch res.Status {
			case StatusExpired:
				expiredCount.Add(1)
			case StatusNeedsActivation:
				needsCount.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), expiredCount.Load())
	assert.Equal(t, int32(7), needsCount.Load())
}

func TestSettleReclassifiesAfterConcurrentReactivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acct, err := f.accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	// The login read a stale expired snapshot, but the stored row was already renewed.
	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)
	f.setAccess(t, acct.ID, true, &future)
	stale := *acct
	stale.Active = true
	stale.Expiration = &past

	res, err := f.gate.settle(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(future))
}
