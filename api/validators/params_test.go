package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/pagination"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr string
	}{
		{"", 50, ""},
		{"?limit=10", 10, ""},
		{"?limit=%2010%20", 10, ""},
		{"?limit=ten", 0, "limit must be an integer"},
		{"?limit=0", 0, "limit must be between 1 and 200"},
		{"?limit=201", 0, "limit must be between 1 and 200"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil), "limit", 50, 1, 200)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageParams(t *testing.T) {
	params, err := ParsePageParams(httptest.NewRequest(http.MethodGet, "/orders?cursor=+abc+", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: pagination.DefaultLimit, Cursor: "abc"}, params)

	_, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/orders?limit=1000", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDParam(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", id.String()), "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", "nope"), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "12 Main St", SanitizeString("  12 Main St \n", 0))
	assert.Equal(t, "line1\nline2", SanitizeString("line1\x00\nline2\x1b", 0))
	assert.Equal(t, "Müll", SanitizeString("Müller", 4))
	assert.Equal(t, "ab", SanitizeString("ab  cd", 3))
}

func TestParseQueryBool(t *testing.T) {
	v, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/n", nil), "unreadOnly", true)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/n?unreadOnly=false", nil), "unreadOnly", true)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/n?unreadOnly=maybe", nil), "unreadOnly", false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseNotificationTypes(t *testing.T) {
	got, err := ParseNotificationTypes(httptest.NewRequest(http.MethodGet, "/n?type=item_sold,+PAYMENT_FAILED&type=SALE_REFUNDED&type=", nil), "type")
	require.NoError(t, err)
	assert.Equal(t, []enums.NotificationType{
		enums.NotificationTypeItemSold,
		enums.NotificationTypePaymentFailed,
		enums.NotificationTypeSaleRefunded,
	}, got)

	got, err = ParseNotificationTypes(httptest.NewRequest(http.MethodGet, "/n", nil), "type")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseNotificationTypes(httptest.NewRequest(http.MethodGet, "/n?type=NEWSLETTER", nil), "type")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
