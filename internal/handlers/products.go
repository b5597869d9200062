package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/services/placement"
)

// UpdateProductRequest is the body of PUT /api/products/{barcode}
type UpdateProductRequest struct {
	Location *string  `json:"location"`
	Stock    *float64 `json:"stock"`
	Confirm  bool     `json:"confirm"`
	Print    bool     `json:"print"`
	Priority string   `json:"priority"`
	Reason   string   `json:"reason"`
}

func (r *Router) getProduct(w http.ResponseWriter, req *http.Request) {
	p, cached, err := r.deps.Placement.Search(req.Context(), mux.Vars(req)["barcode"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"product": p,
		"cached":  cached,
	})
}

func (r *Router) updateProduct(w http.ResponseWriter, req *http.Request) {
	var body UpdateProductRequest
	if err := decode(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	priority, err := printqueue.ParsePriority(body.Priority)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	a := r.actor(req)
	res, err := r.deps.Placement.Update(req.Context(), placement.UpdateRequest{
		Barcode:  mux.Vars(req)["barcode"],
		Location: body.Location,
		Stock:    body.Stock,
		Confirm:  body.Confirm,
		Print:    body.Print,
		Priority: priority,
		ActorID:  a.ID,
		DeviceID: a.DeviceID,
		Reason:   body.Reason,
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	if res.NeedsConfirmation {
		respondJSON(w, http.StatusConflict, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (r *Router) productHistory(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	records, err := r.deps.Placement.History(req.Context(), mux.Vars(req)["barcode"], limit)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (r *Router) listOperations(w http.ResponseWriter, req *http.Request) {
	a := r.actor(req)
	ops, err := r.deps.Placement.Operations(req.Context(), a.ID, a.DeviceID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, ops)
}

func (r *Router) undo(w http.ResponseWriter, req *http.Request) {
	a := r.actor(req)
	out, err := r.deps.Placement.Undo(req.Context(), a.ID, a.DeviceID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (r *Router) redo(w http.ResponseWriter, req *http.Request) {
	a := r.actor(req)
	out, err := r.deps.Placement.Redo(req.Context(), a.ID, a.DeviceID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
