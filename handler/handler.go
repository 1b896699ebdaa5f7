// Package handler exposes a document service over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/docsvc/docs"
	"github.com/stevemurr/docsvc/service"
	"github.com/stevemurr/docsvc/store"
)

// Handler holds the service and the router its routes are registered on.
type Handler struct {
	svc    *service.Service
	router chi.Router
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

// New creates a Handler for svc and wires up all routes.
func New(svc *service.Service) *Handler {
	h := &Handler{svc: svc, router: chi.NewRouter()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/", h.info)
	r.Get("/health", h.health)
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, false)
	})

	r.Route("/docs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.update)
			r.Delete("/", h.delete)
		})
	})
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError maps err onto a status code by its docs.Kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := docs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case docs.KindPrecondition:
		status = http.StatusBadRequest
	case docs.KindNotFound:
		status = http.StatusNotFound
	case docs.KindConflict:
		status = http.StatusConflict
	case docs.KindConfiguration:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("Request failed")
	}
	writeJSON(w, r, status, ErrorResponse{Detail: err.Error(), Kind: kind.String()})
}

// readDocument decodes a JSON object body. An empty body yields a nil
// document when allowEmpty is set.
func readDocument(r *http.Request, allowEmpty bool) (store.Document, error) {
	var doc store.Document
	err := render.DecodeJSON(r.Body, &doc)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil, nil
	}
	return doc, err
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, http.StatusBadRequest, ErrorResponse{
		Detail: "invalid JSON: " + err.Error(),
		Kind:   docs.KindPrecondition.String(),
	})
}

// ---------- status ----------

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- documents ----------

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.GetAllDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r, false)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := h.svc.Create(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	patch, err := readDocument(r, true)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := h.svc.FindByIDAndUpdate(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.FindByIDAndDelete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
