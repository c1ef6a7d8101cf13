package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/autoedu/coursepilot/internal/accounts"
	"github.com/autoedu/coursepilot/internal/cert"
	"github.com/autoedu/coursepilot/internal/config"
	"github.com/autoedu/coursepilot/internal/engine"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/notify"
	"github.com/autoedu/coursepilot/internal/session"
	"github.com/autoedu/coursepilot/internal/status"
	"github.com/autoedu/coursepilot/pkg/webdriver"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()

	// --- event store ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := eventlog.Open(openCtx, eventlog.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("event store: %v", err)
	}
	defer dbh.Close()
	sink := eventlog.Multi{eventlog.ConsoleSink{}, eventlog.NewSQLSink(dbh)}

	// --- notification channel ---
	var notifier notify.Notifier = notify.Nop{}
	var notifyClient *notify.Client
	if cfg.NotifyAPIBase != "" && cfg.NotifyChatID != "" {
		notifyClient = notify.NewClient(cfg.NotifyAPIBase, cfg.NotifyChatID)
		notifier = notifyClient
	}

	// --- account intake ---
	var source accounts.Source
	var reporter accounts.Reporter = accounts.NopReporter{}
	var queue *accounts.QueueClient
	switch {
	case cfg.QueueURL != "":
		queue = &accounts.QueueClient{
			BaseURL:       cfg.QueueURL,
			Token:         cfg.QueueToken,
			EncryptKey:    cfg.QueueXORKey,
			SigningSecret: cfg.QueueHMACKey,
		}
		source = queue
		reporter = queue
	case cfg.AccountsCSV != "":
		source = accounts.FileSource{Path: cfg.AccountsCSV}
	default:
		log.Fatal("no account source: set QUEUE_URL or ACCOUNTS_CSV")
	}

	accts, err := source.FetchPending(ctx)
	if err != nil {
		log.Fatalf("fetch accounts: %v", err)
	}
	if len(accts) == 0 {
		log.Print("no pending accounts")
		return
	}
	log.Printf("run %s: %d pending account(s)", runID, len(accts))

	state := status.NewRunnerState(len(accts))

	// --- status endpoint ---
	if cfg.HTTPAddr != "" {
		router := status.NewRouter(state, status.ServerConfig{
			TokenHash:      cfg.StatusTokenHash,
			AllowedOrigins: cfg.CORSOrigins,
		})
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("status server: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("status endpoint on %s", cfg.HTTPAddr)
	}

	// --- remote control ---
	var controller *notify.Controller
	if notifyClient != nil {
		var requeuer notify.Requeuer
		if queue != nil {
			requeuer = queue
		}
		controller = notify.NewController(notifyClient, state, requeuer, cfg.NotifyChatID)
		go controller.Run(ctx)
	}

	// --- browser sessions ---
	site := session.Site{BaseURL: cfg.SiteBaseURL}
	factory := &session.WebDriverFactory{
		Client:   webdriver.New(webdriver.Config{URL: cfg.WebDriverURL}),
		Site:     site,
		Headless: cfg.Headless,
	}

	engCfg := engine.Config{
		Site:           site,
		MaxRestarts:    cfg.MaxRestarts,
		CourseRetries:  cfg.CourseRetries,
		QuizAttempts:   cfg.QuizAttempts,
		WatchSlack:     cfg.WatchSlack,
		WatchPoll:      cfg.WatchPoll,
		DefaultLecture: cfg.DefaultLecture,
	}
	if controller != nil {
		engCfg.RestartCheck = controller.RestartRequested
	}
	eng := engine.New(engCfg, factory, sink, notifier, state, runID)
	exporter := cert.NewExporter(sink, notifier, runID)

	completed, failed := 0, 0
	for _, acct := range accts {
		if ctx.Err() != nil {
			log.Print("interrupted, stopping account loop")
			break
		}
		_ = reporter.UpdateStatus(ctx, acct.UserID, accounts.StatusInProgress, "")

		out, runErr := eng.RunAccount(ctx, acct)
		switch {
		case runErr != nil && ctx.Err() != nil:
			_ = reporter.UpdateStatus(context.WithoutCancel(ctx), acct.UserID, accounts.StatusPending, "interrupted")
		case out == engine.OutcomeCompleted:
			completed++
			_ = reporter.UpdateStatus(ctx, acct.UserID, accounts.StatusCompleted, "")
			if cfg.ExportCertificates {
				exportCertificates(ctx, factory, exporter, acct)
			}
		default:
			failed++
			_ = reporter.UpdateStatus(ctx, acct.UserID, accounts.StatusFailed, fmt.Sprint(runErr))
		}
	}

	summary := fmt.Sprintf("run %s finished: %d completed, %d failed of %d", runID, completed, failed, len(accts))
	log.Print(summary)
	_ = notifier.SendMessage(context.WithoutCancel(ctx), "", summary)
}

// exportCertificates opens a short-lived session just for the export so a
// wedged post-run browser never taints the next account.
func exportCertificates(ctx context.Context, factory *session.WebDriverFactory, exporter *cert.Exporter, acct accounts.Account) {
	sess, err := factory.New(ctx)
	if err != nil {
		log.Printf("certificate export for %s: %v", acct.UserID, err)
		return
	}
	defer sess.Close(context.WithoutCancel(ctx))

	ok, err := sess.Authenticate(ctx, acct.UserID, acct.Password)
	if err != nil || !ok {
		log.Printf("certificate export for %s: login failed: %v", acct.UserID, err)
		return
	}
	sent, err := exporter.ExportAll(ctx, sess, acct.UserID, acct.ChatID)
	if err != nil {
		log.Printf("certificate export for %s: %v", acct.UserID, err)
		return
	}
	log.Printf("sent %d certificate(s) for %s", sent, acct.UserID)
}
