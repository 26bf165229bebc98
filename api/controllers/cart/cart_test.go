package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/api/controllers/dto"
	"github.com/angelmondragon/trackvault-backend/api/middleware"
	cartsvc "github.com/angelmondragon/trackvault-backend/internal/cart"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
)

type stubCartService struct {
	cart         *models.Cart
	err          error
	lastAdd      cartsvc.AddItemInput
	lastQuantity int
	lastItemType enums.ItemType
}

func (s *stubCartService) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.cart, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, input cartsvc.AddItemInput) (*models.Cart, error) {
	s.lastAdd = input
	return s.cart, s.err
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	s.lastItemType = itemType
	s.lastQuantity = quantity
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*models.Cart, error) {
	s.lastItemType = itemType
	return s.cart, s.err
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.cart, s.err
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withParams(req *http.Request, kv ...string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		routeCtx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCartFetchSuccess(t *testing.T) {
	userID := uuid.New()
	cart := &models.Cart{
		ID:         uuid.New(),
		UserID:     userID,
		TotalCents: 500,
		Lines: []models.CartLine{
			{ItemType: enums.ItemTypeSong, ItemID: uuid.New(), Quantity: 1, UnitPriceCents: 200},
			{ItemType: enums.ItemTypeSong, ItemID: uuid.New(), Quantity: 1, UnitPriceCents: 300},
		},
	}
	handler := CartFetch(&stubCartService{cart: cart}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data dto.Cart `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Total != "5.00" {
		t.Fatalf("expected total 5.00 got %s", envelope.Data.Total)
	}
	if len(envelope.Data.Lines) != 2 {
		t.Fatalf("expected 2 lines got %d", len(envelope.Data.Lines))
	}
}

func TestCartFetchRequiresUser(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemParsesDecimalPrice(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{cart: &models.Cart{ID: uuid.New(), UserID: userID}}
	handler := CartAddItem(svc, nil)
	itemID := uuid.New()

	body := `{"item_type":"merchandise","item_id":"` + itemID.String() + `","quantity":3,"unit_price":"12.50"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastAdd.UnitPriceCents != 1250 {
		t.Fatalf("expected 1250 cents got %d", svc.lastAdd.UnitPriceCents)
	}
	if svc.lastAdd.ItemType != enums.ItemTypeMerchandise || svc.lastAdd.Quantity != 3 {
		t.Fatalf("unexpected input %+v", svc.lastAdd)
	}
}

func TestCartAddItemRejectsBadInput(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.NewString()
	cases := map[string]string{
		"bad type":       `{"item_type":"vinyl","item_id":"` + itemID + `","unit_price":"1.00"}`,
		"missing item":   `{"item_type":"SONG","unit_price":"1.00"}`,
		"zero price":     `{"item_type":"SONG","item_id":"` + itemID + `","unit_price":"0"}`,
		"sub-cent price": `{"item_type":"SONG","item_id":"` + itemID + `","unit_price":"1.005"}`,
		"unknown field":  `{"item_type":"SONG","item_id":"` + itemID + `","unit_price":"1.00","coupon":"x"}`,
	}
	for name, body := range cases {
		handler := CartAddItem(&stubCartService{}, nil)
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), userID)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
	}
}

func TestCartUpdateItemPassesServiceErrors(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeValidation, "digital items are limited to quantity 1")}
	handler := CartUpdateItem(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/song/x", strings.NewReader(`{"quantity":2}`))
	req = withParams(withUser(req, userID), "itemType", "song", "itemId", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastQuantity != 2 || svc.lastItemType != enums.ItemTypeSong {
		t.Fatalf("unexpected call quantity=%d type=%s", svc.lastQuantity, svc.lastItemType)
	}
}

func TestCartRemoveItemInvalidParams(t *testing.T) {
	handler := CartRemoveItem(&stubCartService{}, nil)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/song/nope", nil)
	req = withParams(withUser(req, uuid.New()), "itemType", "song", "itemId", "nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
