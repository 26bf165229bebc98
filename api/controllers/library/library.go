package library

import (
	"net/http"

	"github.com/angelmondragon/trackvault-backend/api/controllers/dto"
	"github.com/angelmondragon/trackvault-backend/api/middleware"
	"github.com/angelmondragon/trackvault-backend/api/responses"
	"github.com/angelmondragon/trackvault-backend/api/validators"
	internallibrary "github.com/angelmondragon/trackvault-backend/internal/library"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

type ownershipResponse struct {
	Purchased bool `json:"purchased"`
}

// List returns the caller's library grouped by item type.
func List(svc internallibrary.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "library service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lib, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewLibrary(lib))
	}
}

// Owned reports whether the caller owns one item.
func Owned(svc internallibrary.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "library service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemType, err := validators.ParseItemTypeParam(r, "itemType")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owned, err := svc.HasPurchased(r.Context(), userID, itemType, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ownershipResponse{Purchased: owned})
	}
}

// Purchased is the service-to-service ownership probe. A missing entitlement is a 404 so
// callers can tell a definite "no" apart from a transport failure.
func Purchased(svc internallibrary.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "library service unavailable"))
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemType, err := validators.ParseItemTypeParam(r, "itemType")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owned, err := svc.HasPurchased(r.Context(), userID, itemType, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !owned {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "item not purchased"))
			return
		}
		responses.WriteSuccess(w, ownershipResponse{Purchased: true})
	}
}

// AdminDelete revokes a single entitlement.
func AdminDelete(svc internallibrary.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "library service unavailable"))
			return
		}
		entitlementID, err := validators.ParseUUIDParam(r, "entitlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteEntitlement(r.Context(), entitlementID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
