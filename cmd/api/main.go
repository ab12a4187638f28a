package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/farmcart/api/internal/di"
	"github.com/farmcart/api/internal/handlers"
	"github.com/farmcart/api/internal/notifications"
	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/config"
	"github.com/farmcart/api/internal/platform/events"
	pfirestore "github.com/farmcart/api/internal/platform/firestore"
	"github.com/farmcart/api/internal/platform/idempotency"
	"github.com/farmcart/api/internal/platform/observability"
	"github.com/farmcart/api/internal/platform/secrets"
	platformstorage "github.com/farmcart/api/internal/platform/storage"
	firestoreRepo "github.com/farmcart/api/internal/repositories/firestore"
	"github.com/farmcart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(
			"Auth.JWTSigningKey",
			"Payments.StripeAPIKey",
			"Payments.StripeWebhookSecret",
			"Payments.SignatureSecret",
		),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	documentStore, err := platformstorage.NewStore(storageClient, cfg.Storage.AssetsBucket)
	if err != nil {
		logger.Fatal("failed to initialise document store", zap.Error(err))
	}

	// Signed invoice downloads need a service account key; without one the
	// API serves canonical object URLs instead.
	var documentSigner *platformstorage.DocumentSigner
	if credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentials != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(credentials)
		if err != nil {
			logger.Warn("signed downloads disabled", zap.Error(err))
		} else {
			signedURLClient, err := platformstorage.NewClient(signer)
			if err != nil {
				logger.Warn("signed downloads disabled", zap.Error(err))
			} else if documentSigner, err = platformstorage.NewDocumentSigner(signedURLClient, cfg.Storage.AssetsBucket); err != nil {
				logger.Warn("signed downloads disabled", zap.Error(err))
			}
		}
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:          cfg.Payments.StripeAPIKey,
		WebhookSecret:   cfg.Payments.StripeWebhookSecret,
		SignatureSecret: cfg.Payments.SignatureSecret,
		Logger:          zapEventLogger(logger.Named("stripe")),
		Clock:           time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		Secret: cfg.Auth.JWTSigningKey,
		Issuer: "farmcart-api",
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(sessions)

	var notifier services.Notifier
	if strings.TrimSpace(cfg.SMTP.From) != "" {
		mailer, err := notifications.NewMailer(notifications.MailerDeps{
			Config: cfg.SMTP,
			Logger: zapEventLogger(logger.Named("mail")),
		})
		if err != nil {
			logger.Fatal("failed to initialise mailer", zap.Error(err))
		}
		notifier = mailer
	} else {
		logger.Warn("smtp sender not configured; transactional email disabled")
	}

	var push services.PushSender
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		messagingClient, err := notifications.NewMessagingClient(ctx, cfg.Firebase)
		if err != nil {
			logger.Warn("push notifications disabled", zap.Error(err))
		} else {
			sender, err := notifications.NewPushSender(notifications.PushSenderDeps{
				Client: messagingClient,
				Logger: zapEventLogger(logger.Named("push")),
			})
			if err != nil {
				logger.Warn("push notifications disabled", zap.Error(err))
			} else {
				push = sender
			}
		}
	}

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if strings.TrimSpace(cfg.Events.Topic) != "" {
		var pubsubOpts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			pubsubOpts = append(pubsubOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID, pubsubOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := events.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		eventPublisher = publisher
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	container, err := di.NewContainer(ctx, di.ContainerDeps{
		Config:   cfg,
		Registry: registry,
		Gateway:  paymentManager,
		Sessions: sessions,
		Store:    documentStore,
		Notifier: notifier,
		Push:     push,
		Events:   eventPublisher,
		Build:    buildInfo,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	svc := container.Services
	loginLimiter := handlers.NewRateLimiter(cfg.RateLimits.DefaultPerMinute, time.Minute)
	webhookLimiter := handlers.NewRateLimiter(cfg.RateLimits.WebhookBurst, time.Minute)

	authHandlers := handlers.NewAuthHandlers(svc.Users, loginLimiter)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog)
	deliveryHandlers := handlers.NewDeliveryHandlers(authenticator, svc.Catalog)
	var invoiceLinks handlers.DocumentLinkSigner
	if documentSigner != nil {
		invoiceLinks = documentSigner
	}
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Invoices, invoiceLinks)
	paymentHandlers := handlers.NewPaymentHandlers(svc.Payments, webhookLimiter)
	reportHandlers := handlers.NewReportHandlers(authenticator, svc.Reports)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Users)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithDeliveryRoutes(deliveryHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithReportRoutes(reportHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("farmcart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// zapEventLogger adapts a zap logger to the event callback signature shared by
// the payments and notification packages.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
