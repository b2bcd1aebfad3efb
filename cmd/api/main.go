package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/application/billing"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/postgres"
	teifcodec "github.com/aymenbha/fattoura-api/internal/infrastructure/teif"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/teif/xades"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/ttn"
	httpRouter "github.com/aymenbha/fattoura-api/internal/interfaces/http"
	"github.com/aymenbha/fattoura-api/pkg/config"
	"github.com/aymenbha/fattoura-api/pkg/logger"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("charger la configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ttn_env", cfg.TTN.Environment).
		Msg("démarrage de l'application")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connexion à PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	logRepo := postgres.NewSubmissionLogRepository(pool)

	// Matériel de signature: .p12 TunTrust ou paire PEM.
	var certStore pkgteif.CertificateProvider
	switch {
	case strings.HasSuffix(cfg.TTN.CertPath, ".p12"), strings.HasSuffix(cfg.TTN.CertPath, ".pfx"):
		certStore, err = xades.LoadFromP12(cfg.TTN.CertPath, cfg.TTN.CertPassword)
	case cfg.TTN.CertPath != "":
		certStore, err = xades.LoadFromPEM(cfg.TTN.CertPath, cfg.TTN.CertKeyPath)
	default:
		log.Fatal().Msg("TTN_CERT_PATH requis: aucune facture ne peut être signée sans certificat")
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.TTN.CertPath).Msg("chargement du certificat de signature")
	}
	signerSvc := xades.NewSignatureService(certStore)

	// Client El Fatoora — seulement en test/prod. En dev l'orchestrateur
	// simule l'acceptation sans appel réseau.
	var submitter billing.Submitter
	if cfg.TTN.Environment != ttn.EnvDev && cfg.TTN.Environment != "" {
		baseURL := cfg.TTN.BaseURL
		if baseURL == "" {
			baseURL = ttn.BaseURLFor(cfg.TTN.Environment)
		}
		submitter = ttn.NewClient(baseURL, cfg.TTN.BearerToken, cfg.TTN.Timeout(), logRepo, log.Zerolog())
	}

	stampDuty, err := decimal.NewFromString(cfg.Billing.StampDutyAmount)
	if err != nil {
		log.Fatal().Err(err).Str("valeur", cfg.Billing.StampDutyAmount).Msg("droit de timbre illisible")
	}

	builder := teifcodec.NewBuilder()
	validator := teifcodec.NewValidator(false)

	lifecycle := billing.NewLifecycleOrchestrator(
		invoiceRepo, builder, validator, signerSvc, submitter,
		stampDuty, cfg.Billing.StampDutyEnabled, log.Zerolog(),
	)
	invoiceUC := billing.NewInvoiceUseCase(
		invoiceRepo, logRepo, stampDuty, cfg.Billing.StampDutyEnabled, log.Zerolog(),
	)
	invoiceHandler := httpRouter.NewInvoiceHandler(invoiceUC, lifecycle, builder, log.Zerolog())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Invoices:  invoiceHandler,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("serveur HTTP arrêté")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("signal d'arrêt reçu, fermeture du serveur...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("arrêt du serveur")
	}

	log.Info().Msg("application arrêtée")
}
