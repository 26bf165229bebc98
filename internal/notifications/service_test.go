package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
)

var inboxClock = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newInbox(t *testing.T) (*service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return inboxClock }
	return s, conn
}

// seedInbox inserts one row per type, a minute apart, oldest first.
func seedInbox(t *testing.T, conn *gorm.DB, userID uuid.UUID, types ...enums.NotificationType) []models.Notification {
	t.Helper()
	rows := make([]models.Notification, 0, len(types))
	for i, typ := range types {
		n := models.Notification{
			UserID:    userID,
			Type:      typ,
			Title:     string(typ),
			Message:   "m",
			CreatedAt: inboxClock.Add(-time.Hour + time.Duration(i)*time.Minute),
		}
		require.NoError(t, conn.Create(&n).Error)
		rows = append(rows, n)
	}
	return rows
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, conn := newInbox(t)
	userID := uuid.New()
	rows := seedInbox(t, conn, userID,
		enums.NotificationTypePurchaseCompleted,
		enums.NotificationTypeItemSold,
		enums.NotificationTypeRefundProcessed,
	)
	seedInbox(t, conn, uuid.New(), enums.NotificationTypeItemSold)

	first, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, rows[2].ID, first.Items[0].ID)
	assert.Equal(t, rows[1].ID, first.Items[1].ID)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, rows[0].ID, second.Items[0].ID)
	assert.Empty(t, second.Cursor)
}

func TestListFiltersByTypeAndReadState(t *testing.T) {
	svc, conn := newInbox(t)
	userID := uuid.New()
	rows := seedInbox(t, conn, userID,
		enums.NotificationTypeItemSold,
		enums.NotificationTypeItemSold,
		enums.NotificationTypePaymentFailed,
	)
	require.NoError(t, svc.MarkRead(context.Background(), userID, rows[0].ID))

	sold, err := svc.List(context.Background(), ListParams{
		UserID: userID,
		Types:  []enums.NotificationType{enums.NotificationTypeItemSold, enums.NotificationTypeItemSold},
	})
	require.NoError(t, err)
	assert.Len(t, sold.Items, 2)

	unreadSold, err := svc.List(context.Background(), ListParams{
		UserID:     userID,
		UnreadOnly: true,
		Types:      []enums.NotificationType{enums.NotificationTypeItemSold},
	})
	require.NoError(t, err)
	require.Len(t, unreadSold.Items, 1)
	assert.Equal(t, rows[1].ID, unreadSold.Items[0].ID)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newInbox(t)
	ctx := context.Background()

	_, err := svc.List(ctx, ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "missing user")

	_, err = svc.List(ctx, ListParams{UserID: uuid.New(), Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "bad cursor")

	_, err = svc.List(ctx, ListParams{UserID: uuid.New(), Types: []enums.NotificationType{"NEWSLETTER"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "unknown type")
}

func TestUnreadCount(t *testing.T) {
	svc, conn := newInbox(t)
	ctx := context.Background()
	userID := uuid.New()
	rows := seedInbox(t, conn, userID,
		enums.NotificationTypeItemSold,
		enums.NotificationTypeSaleRefunded,
		enums.NotificationTypeItemSold,
	)
	seedInbox(t, conn, uuid.New(), enums.NotificationTypeItemSold)

	n, err := svc.UnreadCount(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, svc.MarkRead(ctx, userID, rows[0].ID))
	n, err = svc.UnreadCount(ctx, userID, []enums.NotificationType{enums.NotificationTypeItemSold})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.UnreadCount(ctx, uuid.Nil, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkReadKeepsFirstReadTime(t *testing.T) {
	svc, conn := newInbox(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedInbox(t, conn, userID, enums.NotificationTypePurchaseCompleted)[0]

	require.NoError(t, svc.MarkRead(ctx, userID, row.ID))
	svc.now = func() time.Time { return inboxClock.Add(time.Hour) }
	require.NoError(t, svc.MarkRead(ctx, userID, row.ID))

	var stored models.Notification
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	assert.True(t, stored.IsRead)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(inboxClock), "read_at %s", stored.ReadAt)
}

func TestMarkReadHidesOtherUsersRows(t *testing.T) {
	svc, conn := newInbox(t)
	row := seedInbox(t, conn, uuid.New(), enums.NotificationTypeItemSold)[0]

	err := svc.MarkRead(context.Background(), uuid.New(), row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = svc.MarkRead(context.Background(), uuid.New(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkAllReadOnlyTouchesUnread(t *testing.T) {
	svc, conn := newInbox(t)
	ctx := context.Background()
	userID := uuid.New()
	rows := seedInbox(t, conn, userID,
		enums.NotificationTypeItemSold,
		enums.NotificationTypeItemSold,
		enums.NotificationTypeOrderStatusChanged,
	)
	require.NoError(t, svc.MarkRead(ctx, userID, rows[0].ID))

	n, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, n)

	left, err := svc.UnreadCount(ctx, userID, nil)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestStoreFailureIsDependencyError(t *testing.T) {
	svc, conn := newInbox(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.List(context.Background(), ListParams{UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = svc.MarkAllRead(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
