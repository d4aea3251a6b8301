package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aridsondez/sqs-lite-mem/internal/queue/store"
)

const DefaultTimeout = 5 * time.Second

type Server struct {
	store   store.Store
	addr    string
	timeout time.Duration
	log     zerolog.Logger
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithTimeout bounds each request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func newServer(addr string, st store.Store, opts ...Option) *Server {
	srv := &Server{
		store:   st,
		addr:    addr,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func NewServer(addr string, st store.Store, opts ...Option) *http.Server {
	srv := newServer(addr, st, opts...)
	return &http.Server{
		Addr:              srv.addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: srv.timeout,
	}
}

// NewHandler returns the router without binding an address.
func NewHandler(st store.Store, opts ...Option) http.Handler {
	return newServer("", st, opts...).Routes()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/queues", s.handleCreateQueue)
		r.Get("/queues", s.handleListQueues)
		r.Delete("/queues/{queue}", s.handleDeleteQueue)

		// push: POST /v1/queues/{queue}/messages
		r.Post("/queues/{queue}/messages", s.handlePush)

		// pull: POST /v1/queues/{queue}:receive
		r.Post("/queues/{queue}:receive", s.handleReceive)

		// delete: DELETE /v1/queues/{queue}/messages/{receipt}
		r.Delete("/queues/{queue}/messages/{receipt}", s.handleDeleteMessage)

		r.Post("/queues/{queue}:purge", s.handlePurge)
		r.Get("/queues/{queue}/attributes", s.handleGetAttributes)
		r.Put("/queues/{queue}/attributes", s.handleSetAttributes)
		r.Get("/queues/{queue}/count", s.handleCount)
	})

	return r
}

type createQueueRequest struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type createQueueResponse struct {
	Name string `json:"name"`
}

type listQueuesResponse struct {
	Queues []string `json:"queues"`
}

type pushRequest struct {
	Body string `json:"body"`
}

type pushResponse struct {
	ID string `json:"id"`
}

type receivedMessage struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Receipt string `json:"receipt"`
}

type attributesBody struct {
	Attributes map[string]string `json:"attributes"`
}

type countResponse struct {
	ApproximateNumberOfMessages int `json:"approximate_number_of_messages"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// ---------- Handlers ----------

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "`name` is required")
		return
	}
	if err := s.store.CreateQueue(r.Context(), req.Name, req.Attributes); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &createQueueResponse{Name: req.Name})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListQueues(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, &listQueuesResponse{Queues: names})
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteQueue(r.Context(), chi.URLParam(r, "queue")); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: true})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	id, err := s.store.Push(r.Context(), qname, req.Body)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &pushResponse{ID: id})
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.Pull(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, &receivedMessage{
		ID:      msg.ID,
		Body:    msg.Body,
		Receipt: msg.ReceiptHandle,
	})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	receipt, err := url.PathUnescape(chi.URLParam(r, "receipt"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid receipt: %v", err)
		return
	}
	ok, err := s.store.Delete(r.Context(), chi.URLParam(r, "queue"), receipt)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if !ok {
		// unknown, already deleted, or expired back to the queue
		httpError(w, http.StatusNotFound, "receipt handle not found")
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: true})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.PurgeQueue(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: ok})
}

func (s *Server) handleGetAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.store.GetQueueAttributes(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &attributesBody{Attributes: attrs})
}

// handleSetAttributes answers with the attributes in effect after the update.
func (s *Server) handleSetAttributes(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	var req attributesBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := s.store.SetQueueAttributes(r.Context(), qname, req.Attributes); err != nil {
		s.storeError(w, r, err)
		return
	}
	attrs, err := s.store.GetQueueAttributes(r.Context(), qname)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &attributesBody{Attributes: attrs})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetApproximateNumberOfMessages(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &countResponse{ApproximateNumberOfMessages: n})
}

// ---------- helpers ----------

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrQueueDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidQueueName), errors.Is(err, store.ErrInvalidMessageBody):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrQueueAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("store call failed")
	}
	httpError(w, code, "%v", err)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
