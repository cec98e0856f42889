// Package main provides the HTTP API server of the form platform: it accepts
// form submissions and records the matching outbox event in the same
// transaction.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formplatform/form-events/internal/config"
	"github.com/formplatform/form-events/internal/logger"
	"github.com/formplatform/form-events/internal/model"
	"github.com/formplatform/form-events/internal/repository"
	"github.com/formplatform/form-events/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	exitCode               = 1
)

// APIServer handles HTTP requests for form submission.
type APIServer struct {
	formService   service.FormService
	healthService service.HealthService
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(formService service.FormService, healthService service.HealthService) *APIServer {
	return &APIServer{
		formService:   formService,
		healthService: healthService,
	}
}

// SubmitForm handles POST /forms endpoint for form submission.
func (s *APIServer) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	form, err := s.formService.SubmitForm(r.Context(), &model.SubmitFormParams{Data: data})
	if err != nil {
		if errors.Is(err, model.ErrEmptyFormData) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"id":      form.ID.String(),
		"message": "Form submitted successfully",
	}); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// GetForm handles GET /forms/get endpoint for form retrieval.
func (s *APIServer) GetForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		http.Error(w, "ID parameter is required", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid ID parameter", http.StatusBadRequest)
		return
	}

	form, err := s.formService.GetForm(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)
	if err := json.NewEncoder(w).Encode(form); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// HealthCheck handles GET /health endpoint. Readiness is derived from the
// outbox backlog: too many permanently failed events means the channel is
// likely broken.
func (s *APIServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.healthService.OutboxHealth(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)

	if !report.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel)
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	formRepo := repository.NewFormRepositoryImpl(dbPool)
	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	transactionMgr := repository.NewTransactionManagerImpl(dbPool)
	formService := service.NewFormServiceImpl(formRepo, outboxRepo, transactionMgr)
	healthService := service.NewHealthServiceImpl(outboxRepo, nil, service.HealthThresholds{
		OutboxFailed: cfg.OutboxFailedThreshold,
	})

	server := NewAPIServer(formService, healthService)

	http.HandleFunc("/forms", server.SubmitForm)
	http.HandleFunc("/forms/get", server.GetForm)
	http.HandleFunc("/health", server.HealthCheck)

	slog.Info("starting API server", slog.String("service", "api"), slog.String("port", cfg.Port))

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}
