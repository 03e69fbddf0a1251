// Command seed registers an operator account (mall admin, lojista, vendedor or
// parceiro) directly in Postgres.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/config"
	pgInfra "github.com/fastygo/clientevip/internal/infrastructure/postgres"
	"github.com/fastygo/clientevip/pkg/logger"
	"github.com/fastygo/clientevip/repository/postgres"
	authUC "github.com/fastygo/clientevip/usecase/auth"
)

func main() {
	var in authUC.RegisterInput
	var role string
	flag.StringVar(&in.Email, "email", os.Getenv("ADMIN_EMAIL"), "account email")
	flag.StringVar(&in.Password, "password", os.Getenv("ADMIN_PASSWORD"), "account password")
	flag.StringVar(&in.Name, "name", "", "display name")
	flag.StringVar(&role, "role", string(domain.RoleAdmin), "admin, admin_shopping, lojista, vendedor or parceiro")
	flag.StringVar(&in.StoreID, "store", "", "dealership id for lojista and vendedor")
	flag.StringVar(&in.PartnerID, "partner", "", "partner id for parceiro")
	flag.Parse()
	in.Role = domain.Role(role)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: "console",
		Service:  cfg.AppName + "-seed",
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}
	pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pgInfra.Close(pool, zapLogger)

	uc := authUC.New(postgres.NewAccountRepository(pool), nil, zapLogger)
	account, err := uc.Register(ctx, in)
	if err != nil {
		zapLogger.Fatal("seed failed", zap.Error(err))
	}
	zapLogger.Info("account ready",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.String("role", string(account.Role)))
}
