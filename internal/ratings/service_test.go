package ratings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

type stubGate struct {
	owned bool
	calls int
}

func (g *stubGate) HasPurchasedItem(context.Context, uuid.UUID, enums.ItemType, uuid.UUID) bool {
	g.calls++
	return g.owned
}

func newTestService(t *testing.T, gate *stubGate) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)), gate, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestRateSongRequiresPurchase(t *testing.T) {
	gate := &stubGate{owned: false}
	svc := newTestService(t, gate)

	_, err := svc.Rate(context.Background(), RateInput{UserID: uuid.New(), EntityType: enums.RatingEntitySong, EntityID: uuid.New(), Score: 4})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Equal(t, 1, gate.calls)
}

func TestRateArtistSkipsGate(t *testing.T) {
	gate := &stubGate{owned: false}
	svc := newTestService(t, gate)

	rating, err := svc.Rate(context.Background(), RateInput{UserID: uuid.New(), EntityType: enums.RatingEntityArtist, EntityID: uuid.New(), Score: 5})
	require.NoError(t, err)
	require.Equal(t, 5, rating.Score)
	require.Zero(t, gate.calls)
}

func TestRateUpdateSkipsGate(t *testing.T) {
	gate := &stubGate{owned: true}
	svc := newTestService(t, gate)
	ctx := context.Background()
	userID, albumID := uuid.New(), uuid.New()
	comment := "  great record  "

	first, err := svc.Rate(ctx, RateInput{UserID: userID, EntityType: enums.RatingEntityAlbum, EntityID: albumID, Score: 3, Comment: &comment})
	require.NoError(t, err)
	require.Equal(t, "great record", *first.Comment)
	require.Equal(t, 1, gate.calls)

	gate.owned = false
	second, err := svc.Rate(ctx, RateInput{UserID: userID, EntityType: enums.RatingEntityAlbum, EntityID: albumID, Score: 5})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 5, second.Score)
	require.Nil(t, second.Comment)
	require.Equal(t, 1, gate.calls)
}

func TestRateValidation(t *testing.T) {
	svc := newTestService(t, &stubGate{owned: true})
	ctx := context.Background()

	_, err := svc.Rate(ctx, RateInput{UserID: uuid.New(), EntityType: enums.RatingEntitySong, EntityID: uuid.New(), Score: 6})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Rate(ctx, RateInput{UserID: uuid.New(), EntityType: "PODCAST", EntityID: uuid.New(), Score: 3})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Rate(ctx, RateInput{EntityType: enums.RatingEntitySong, EntityID: uuid.New(), Score: 3})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSummary(t *testing.T) {
	svc := newTestService(t, &stubGate{owned: true})
	ctx := context.Background()
	songID := uuid.New()

	empty, err := svc.Summary(ctx, enums.RatingEntitySong, songID)
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.Zero(t, empty.Average)

	for _, score := range []int{5, 4, 4} {
		_, err := svc.Rate(ctx, RateInput{UserID: uuid.New(), EntityType: enums.RatingEntitySong, EntityID: songID, Score: score})
		require.NoError(t, err)
	}

	summary, err := svc.Summary(ctx, enums.RatingEntitySong, songID)
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.Count)
	require.InDelta(t, 4.33, summary.Average, 0.001)
}
