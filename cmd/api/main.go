package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/auth"
	authrepo "github.com/sclinedc/edc-core/internal/auth/repo"
	"github.com/sclinedc/edc-core/internal/notify"
	"github.com/sclinedc/edc-core/internal/role"
	"github.com/sclinedc/edc-core/internal/router"
	"github.com/sclinedc/edc-core/internal/site"
	"github.com/sclinedc/edc-core/internal/study"
	"github.com/sclinedc/edc-core/internal/survey"
	surveyrepo "github.com/sclinedc/edc-core/internal/survey/repo"
	"github.com/sclinedc/edc-core/internal/user"
	userrepo "github.com/sclinedc/edc-core/internal/user/repo"
	"github.com/sclinedc/edc-core/pkg/database"
	"github.com/sclinedc/edc-core/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting edc-core")

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	rdb, err := database.ConnectRedis(database.RedisConfigFromEnv())
	if err != nil {
		sugar.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()

	userRepo := userrepo.NewUserRepo(db)
	roleRepo := role.NewRepo(db)
	siteRepo := site.NewRepo(db)
	studyRepo := study.NewRepo(db)
	responseRepo := surveyrepo.NewResponseRepo(db)
	auditRepo := audit.NewRepo(db)
	challengeRepo := authrepo.NewChallengeRepo(rdb)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for name, ensure := range map[string]func(context.Context) error{
		"sp_role_master": roleRepo.EnsureTable,
		"sp_site_master": siteRepo.EnsureTable,
		"sp_studies":     studyRepo.EnsureTable,
		"sp_user_master": userRepo.EnsureTable,
		"study_response": responseRepo.EnsureTable,
		"sp_audit_trail": auditRepo.EnsureTable,
	} {
		if err := ensure(initCtx); err != nil {
			sugar.Fatalf("ensure table %s: %v", name, err)
		}
	}

	issuer, err := auth.TokenIssuerFromEnv()
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}

	mailer := notify.NewMailer(notify.ConfigFromEnv())
	tasks := notify.NewDispatcher(sugar)
	auditor := audit.NewRecorder(auditRepo, sugar)

	authSvc := auth.NewService(userRepo, challengeRepo, mailer, tasks, auditor, issuer, auth.WindowFromEnv(), sugar)
	userSvc := user.NewService(userRepo, mailer, tasks, auditor, sugar)
	surveySvc := survey.NewService(responseRepo, studyRepo, userRepo, mailer, tasks, auditor, sugar)

	handler := router.RegisterRoutes(router.Handlers{
		Auth:    auth.NewHandler(authSvc, userRepo, auditRepo, sugar),
		Users:   user.NewHandler(userSvc, auditRepo, sugar),
		Roles:   role.NewHandler(roleRepo, auditRepo, auditor, sugar),
		Sites:   site.NewHandler(siteRepo, sugar),
		Studies: study.NewHandler(studyRepo, sugar),
		Survey:  survey.NewHandler(surveySvc, sugar),
		Issuer:  issuer,
	}, sugar)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("server shutdown: %v", err)
	}
	sugar.Info("goodbye")
}
