package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/rights"
	"github.com/tixgate/actionset/model"
)

func handleRightGrant(engine *rights.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		id := chi.URLParam(r, "id")

		var body struct {
			Principal string `json:"principal"`
			Right     string `json:"right"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Principal == "" || body.Right == "" {
			WriteError(w, r, model.NewBadRequestError("principal and right are required"))
			return
		}

		err := engine.Grant(r.Context(), rctx.SubjectID, body.Principal, model.EntityTypeActionSet, id, body.Right, false)
		if metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			metrics.RecordRightsGrant(model.EntityTypeActionSet, outcome)
		}
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "granted"})
	}
}

func handleRightRevoke(engine *rights.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		id := chi.URLParam(r, "id")

		var body struct {
			Principal string `json:"principal"`
			Right     string `json:"right"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Principal == "" || body.Right == "" {
			WriteError(w, r, model.NewBadRequestError("principal and right are required"))
			return
		}

		err := engine.Revoke(r.Context(), rctx.SubjectID, body.Principal, model.EntityTypeActionSet, id, body.Right)
		if metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			metrics.RecordRightsGrant(model.EntityTypeActionSet, outcome)
		}
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

// handleRightList returns the rights held per principal on one set. The
// caller must hold a right themselves; strangers get NOT_FOUND.
func handleRightList(engine *rights.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		id := chi.URLParam(r, "id")

		held, err := engine.CheckAny(r.Context(), rctx.SubjectID, model.EntityTypeActionSet, id)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if !held {
			WriteError(w, r, model.NewNotFoundError("action set not found"))
			return
		}

		snap, err := engine.Snapshot(r.Context(), model.EntityTypeActionSet, id)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rights": snap})
	}
}
