package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/institutoandes/cobranza/internal/audit"
	auditStore "github.com/institutoandes/cobranza/internal/audit/store"
	"github.com/institutoandes/cobranza/internal/client"
	clientStore "github.com/institutoandes/cobranza/internal/client/store"
	"github.com/institutoandes/cobranza/internal/config"
	"github.com/institutoandes/cobranza/internal/database"
	"github.com/institutoandes/cobranza/internal/document"
	docStore "github.com/institutoandes/cobranza/internal/document/store"
	"github.com/institutoandes/cobranza/internal/engine"
	engineStore "github.com/institutoandes/cobranza/internal/engine/store"
	"github.com/institutoandes/cobranza/internal/governance"
	cobranzaHttp "github.com/institutoandes/cobranza/internal/http"
	auditHandler "github.com/institutoandes/cobranza/internal/http/audit"
	clientHandler "github.com/institutoandes/cobranza/internal/http/client"
	docHandler "github.com/institutoandes/cobranza/internal/http/document"
	importHandler "github.com/institutoandes/cobranza/internal/http/importcsv"
	paymentHandler "github.com/institutoandes/cobranza/internal/http/payment"
	"github.com/institutoandes/cobranza/internal/ingest/sii"
	"github.com/institutoandes/cobranza/internal/payment"
	paymentStore "github.com/institutoandes/cobranza/internal/payment/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cutover, err := cfg.CutoverDate()
	if err != nil {
		slog.Error("invalid cutover date", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	gov := governance.NewPolicy(cutover)

	var (
		documentService = document.NewService(docStore.New(db))
		paymentService  = payment.NewService(paymentStore.New(db))
		auditService    = audit.NewService(auditStore.New(db))
		clientService   = client.NewService(
			clientStore.New(db),
			client.EditDistanceScorer{},
			cfg.Clients.SimilarityThreshold,
			cfg.Clients.SuggestionLimit,
		)
		engineService = engine.NewService(engineStore.New(db, cfg.Engine.LockTimeout), gov)
	)

	var (
		documentH = docHandler.NewHandler(documentService, engineService)
		paymentH  = paymentHandler.NewHandler(paymentService, engineService)
		clientH   = clientHandler.NewHandler(clientService)
		importH   = importHandler.NewHandler(sii.New(), engineService)
		auditH    = auditHandler.NewHandler(auditService)
	)

	router := cobranzaHttp.New(documentH, paymentH, clientH, importH, auditH)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "app", cfg.App.Name, "port", port, "cutover", cutover.Format("2006-01-02"))

	server := &http.Server{
		Addr:         port,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	if err := server.ListenAndServe(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
