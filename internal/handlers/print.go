package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/websocket"
)

type createJobRequest struct {
	LabelIDs []int64 `json:"labelIds"`
	Priority string  `json:"priority"`
}

func (r *Router) queueStatus(w http.ResponseWriter, req *http.Request) {
	st, err := r.deps.Queue.Status(req.Context())
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) listJobs(w http.ResponseWriter, req *http.Request) {
	jobs, err := r.deps.Queue.UserJobs(req.Context(), r.actor(req).ID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (r *Router) createJob(w http.ResponseWriter, req *http.Request) {
	var body createJobRequest
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
	id, err := r.deps.Queue.Enqueue(req.Context(), body.LabelIDs, a.ID, a.DeviceID, priority)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

func (r *Router) printPending(w http.ResponseWriter, req *http.Request) {
	var body createJobRequest
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
	id, n, err := r.deps.Placement.PrintPending(req.Context(), a.ID, a.DeviceID, priority)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"jobId": id, "labels": n})
}

func (r *Router) getJob(w http.ResponseWriter, req *http.Request) {
	job, err := r.deps.Queue.Job(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (r *Router) cancelJob(w http.ResponseWriter, req *http.Request) {
	ok, err := r.deps.Queue.Cancel(req.Context(), mux.Vars(req)["id"], r.actor(req).ID)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	if !ok {
		respondError(w, http.StatusConflict, "job is no longer cancellable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (r *Router) resetQueueStats(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Queue.ResetStats(req.Context()); err != nil {
		r.fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) cacheStats(w http.ResponseWriter, req *http.Request) {
	st, err := r.deps.Cache.Stats(req.Context())
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) clearCache(w http.ResponseWriter, req *http.Request) {
	n, err := r.deps.Cache.Clear(req.Context())
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	a := r.actor(req)
	websocket.ServeWs(r.deps.Hub, w, req, a.ID, a.DeviceID)
}
