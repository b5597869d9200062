package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/sync"
)

func productID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validation("invalid product id %q", mux.Vars(req)["id"])
	}
	return id, nil
}

func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.deps.Sync.CheckConnectivity(req.Context()))
}

func (r *Router) syncProduct(w http.ResponseWriter, req *http.Request) {
	id, err := productID(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	strategy, err := sync.ParseStrategy(req.URL.Query().Get("strategy"))
	if err != nil {
		r.fail(w, req, err)
		return
	}

	res, err := r.deps.Sync.SyncProduct(req.Context(), id, r.actor(req).ID, strategy)
	if err != nil {
		respondJSON(w, statusFor(err), res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type pushRequest struct {
	ChangeType string `json:"changeType"`
}

func (r *Router) pushProduct(w http.ResponseWriter, req *http.Request) {
	id, err := productID(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	body := pushRequest{ChangeType: string(sync.ChangeBoth)}
	if err := decode(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	change, err := sync.ParseChangeType(body.ChangeType)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	a := r.actor(req)
	res, err := r.deps.Sync.PushToERP(req.Context(), id, change, a.ID, a.DeviceID)
	if err != nil {
		respondJSON(w, statusFor(err), res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type fullSyncRequest struct {
	MaxItems int    `json:"maxItems"`
	Strategy string `json:"strategy"`
}

func (r *Router) fullSync(w http.ResponseWriter, req *http.Request) {
	var body fullSyncRequest
	if err := decode(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	strategy, err := sync.ParseStrategy(body.Strategy)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	res, err := r.deps.Sync.FullSync(req.Context(), body.MaxItems, strategy)
	if err != nil {
		respondJSON(w, statusFor(err), res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (r *Router) listConflicts(w http.ResponseWriter, req *http.Request) {
	var id int64
	if raw := req.URL.Query().Get("productId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.fail(w, req, errs.Validation("invalid productId %q", raw))
			return
		}
		id = parsed
	}

	conflicts, err := r.deps.Sync.ListConflicts(req.Context(), id)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, conflicts)
}

type resolveRequest struct {
	Winner string `json:"winner"`
}

func (r *Router) resolveConflict(w http.ResponseWriter, req *http.Request) {
	id, err := productID(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	field, err := sync.ParseField(mux.Vars(req)["field"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	var body resolveRequest
	if err := decode(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	winner, err := sync.ParseSource(body.Winner)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	p, err := r.deps.Sync.ResolveConflict(req.Context(), id, field, winner, r.actor(req).ID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
