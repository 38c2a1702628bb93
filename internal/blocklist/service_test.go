package blocklist

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type fakeCache struct {
	values    map[string]string
	gets      int
	fail      bool
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.gets++
	if f.fail {
		return "", errors.New("connection refused")
	}
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if hook := f.beforeSet; hook != nil {
		f.beforeSet = nil
		hook()
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCache) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.fail {
		return 0, errors.New("connection refused")
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeCache) BlocklistKey(entityType, value string) string {
	return "sf:blocklist:" + entityType + ":" + value
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	cache  *fakeCache
	outbox *outbox.Repository
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t, "blocklist")
	auditSvc, err := audit.NewService(conn)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	cache := newFakeCache()
	svc, err := NewService(ServiceParams{
		DB:       db.Wrap(conn),
		Repo:     NewRepository(conn),
		Cache:    cache,
		CacheTTL: 5 * time.Minute,
		Audit:    auditSvc,
		Outbox:   outbox.NewService(outboxRepo, nil),
	})
	require.NoError(t, err)
	f := &fixture{db: conn, svc: svc, cache: cache, outbox: outboxRepo, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	return f
}

func TestBlockAndIsBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	blocked, err := f.svc.IsBlocked(ctx, enums.BlockedEntityIP, "203.0.113.5")
	require.NoError(t, err)
	require.False(t, blocked)

	actor := uuid.New()
	entity, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: " 203.0.113.5 ", Reason: "chargebacks", ActorID: &actor})
	require.NoError(t, err)
	require.True(t, entity.IsActive)
	require.Equal(t, "203.0.113.5", entity.Value)

	blocked, err = f.svc.IsBlocked(ctx, enums.BlockedEntityIP, "203.0.113.5")
	require.NoError(t, err)
	require.True(t, blocked, "block must invalidate the negative cache entry")

	events, err := f.outbox.ListForAggregate(ctx, enums.AggregateBlockedEntity, entity.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventBlocklistEntityBlocked, events[0].EventType)
}

func TestBlockTwiceRefreshesInsteadOfFailing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityEmail, Value: "Fraud@Example.com", Reason: "first"})
	require.NoError(t, err)

	expires := f.now.Add(time.Hour)
	second, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityEmail, Value: "fraud@example.com", Reason: "second", ExpiresAt: &expires})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "second", second.Reason)
	require.NotNil(t, second.ExpiresAt)

	var count int64
	require.NoError(t, f.db.Table("blocked_entities").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUnblockKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entity, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityCard, Value: "fp_123", Reason: "stolen"})
	require.NoError(t, err)

	actor := uuid.New()
	unblocked, err := f.svc.Unblock(ctx, entity.ID, &actor)
	require.NoError(t, err)
	require.False(t, unblocked.IsActive)
	require.NotNil(t, unblocked.UnblockedAt)
	require.Equal(t, actor, *unblocked.UnblockedBy)

	blocked, err := f.svc.IsBlocked(ctx, enums.BlockedEntityCard, "fp_123")
	require.NoError(t, err)
	require.False(t, blocked)

	trail, err := audit.NewService(f.db)
	require.NoError(t, err)
	entries, err := trail.ListForEntity(ctx, enums.AuditEntityBlockedEntity, entity.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, enums.AuditActionUnblocked, entries[1].Action)

	_, err = f.svc.Unblock(ctx, uuid.New(), nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestExpiredBlockIsInactive(t *testing.T) {
	f := newFixture(t)
	f.svc.cache = nil
	ctx := context.Background()

	expires := f.now.Add(10 * time.Minute)
	_, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityDevice, Value: "dev-1", Reason: "bot", ExpiresAt: &expires})
	require.NoError(t, err)

	blocked, err := f.svc.IsBlocked(ctx, enums.BlockedEntityDevice, "dev-1")
	require.NoError(t, err)
	require.True(t, blocked)

	f.now = f.now.Add(11 * time.Minute)
	blocked, err = f.svc.IsBlocked(ctx, enums.BlockedEntityDevice, "dev-1")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestBlockDuringLookupIsNotMaskedByNegativeEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.beforeSet = func() {
		_, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: "203.0.113.5", Reason: "chargebacks"})
		require.NoError(t, err)
	}
	blocked, err := f.svc.IsBlocked(ctx, enums.BlockedEntityIP, "203.0.113.5")
	require.NoError(t, err)
	require.False(t, blocked)

	blocked, err = f.svc.IsBlocked(ctx, enums.BlockedEntityIP, "203.0.113.5")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, cacheBlocked, f.cache.values["sf:blocklist:ip:203.0.113.5:v1"])
}

func TestCacheFailureFallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: "198.51.100.7", Reason: "abuse"})
	require.NoError(t, err)

	f.cache.fail = true
	blocked, err := f.svc.IsBlocked(ctx, enums.BlockedEntityIP, "198.51.100.7")
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestBlockValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Block(ctx, BlockInput{Type: "phone", Value: "x", Reason: "r"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: "  ", Reason: "r"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	past := f.now.Add(-time.Minute)
	_, err = f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: "10.0.0.1", Reason: "r", ExpiresAt: &past})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		f.now = f.now.Add(time.Duration(i+1) * time.Second)
		_, err := f.svc.Block(ctx, BlockInput{Type: enums.BlockedEntityIP, Value: ip, Reason: "scan"})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, nil, true, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "10.0.0.3", page.Items[0].Value)
	require.NotEmpty(t, page.NextCursor)

	next, err := f.svc.List(ctx, nil, true, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	require.Equal(t, "10.0.0.1", next.Items[0].Value)
	require.Empty(t, next.NextCursor)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "a@b.com", Normalize(enums.BlockedEntityEmail, "  A@B.com "))
	require.Equal(t, "2001:db8::1", Normalize(enums.BlockedEntityIP, "2001:0db8:0000::1"))
	require.Equal(t, "tok_ABC", Normalize(enums.BlockedEntityCard, "tok_ABC"))
}
