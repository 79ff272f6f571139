// Package app boots the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/access"
	"github.com/guildpay/guildpay/internal/config"
	"github.com/guildpay/guildpay/internal/db"
	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/gateway"
	internalhttp "github.com/guildpay/guildpay/internal/http"
	"github.com/guildpay/guildpay/internal/logging"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/notify"
	"github.com/guildpay/guildpay/internal/scheduler"
	"github.com/guildpay/guildpay/internal/security"
	"github.com/guildpay/guildpay/internal/store"
)

// resolveDSN applies the env override for the database DSN.
func resolveDSN(cfg *config.Config) string {
	if dsn := os.Getenv("GUILDPAY_DB_DSN"); dsn != "" {
		return dsn
	}
	return cfg.Database.DSN
}

// openStore opens the database, runs migrations and wraps the connection.
func openStore(cfg *config.Config) (*store.Store, error) {
	conn, errOpen := db.Open(resolveDSN(cfg))
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	return store.New(conn), nil
}

// buildEngine assembles the gateways, courier and engine from config.
func buildEngine(cfg *config.Config, st *store.Store) (*engine.Engine, *gateway.StripeGateway, *gateway.CoinPaymentsGateway) {
	card := gateway.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	crypto := gateway.NewCoinPaymentsGateway(cfg.CoinPayments.Endpoint)
	courier := notify.NewFromAddr(cfg.Redis.Addr)
	return engine.New(st, card, crypto, courier), card, crypto
}

// Migrate opens the database and runs migrations, then exits.
func Migrate(ctx context.Context, cfg *config.Config) error {
	_, errOpen := openStore(cfg)
	return errOpen
}

// RunServer boots the HTTP API and the background scheduler and blocks
// until ctx is canceled.
func RunServer(ctx context.Context, cfg *config.Config) error {
	logging.Setup(cfg.Logging)

	st, errStore := openStore(cfg)
	if errStore != nil {
		return errStore
	}
	eng, card, crypto := buildEngine(cfg, st)

	sched := scheduler.New(eng, crypto)
	sched.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	internalhttp.RegisterRoutes(router, eng, card, cfg.JWT, cfg.Stripe.WebhookSecret)

	server := &nethttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, nethttp.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// GenerateAccessCodes mints owner onboarding codes and prints them.
func GenerateAccessCodes(ctx context.Context, cfg *config.Config, count int) error {
	st, errStore := openStore(cfg)
	if errStore != nil {
		return errStore
	}
	codes, errGenerate := access.GenerateCodes(ctx, st, count)
	if errGenerate != nil {
		return errGenerate
	}
	for _, code := range codes {
		fmt.Println(code)
	}
	return nil
}

// CreateOperator provisions a platform operator account.
func CreateOperator(ctx context.Context, cfg *config.Config, username, password string) error {
	st, errStore := openStore(cfg)
	if errStore != nil {
		return errStore
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	operator := models.Operator{Username: username, PasswordHash: hash}
	if errCreate := st.DB().WithContext(ctx).Create(&operator).Error; errCreate != nil {
		return errCreate
	}
	fmt.Printf("operator %s created (id=%d)\n", operator.Username, operator.ID)
	return nil
}

// ExpireSubscriptions runs one expiry sweep and exits.
func ExpireSubscriptions(ctx context.Context, cfg *config.Config) error {
	st, errStore := openStore(cfg)
	if errStore != nil {
		return errStore
	}
	eng, _, _ := buildEngine(cfg, st)
	expired, errSweep := eng.ExpireSweep(ctx)
	if errSweep != nil {
		return errSweep
	}
	fmt.Printf("%d subscriptions expired\n", expired)
	return nil
}
