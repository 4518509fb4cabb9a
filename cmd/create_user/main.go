package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"homeledger/models"
	"homeledger/pkg/account"
	"homeledger/pkg/config"
	"homeledger/pkg/logging"
)

func main() {
	name := flag.String("name", "", "display name (default: local part of the email)")
	household := flag.String("household", "", "household name (default: <name>'s household)")
	role := flag.String("role", string(models.RoleUser), "user, admin or manager")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/create_user [flags] <email> <password>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireDB(); err != nil {
		log.Fatal().Err(err).Msg("database not configured")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}

	user, err := account.Register(context.Background(), db, account.Registration{
		Email:         flag.Arg(0),
		Password:      flag.Arg(1),
		Name:          *name,
		HouseholdName: *household,
		Role:          models.Role(*role),
	})
	if errors.Is(err, account.ErrUserExists) {
		fmt.Printf("user %s already exists\n", flag.Arg(0))
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create user")
	}
	fmt.Printf("created user %s id=%d household=%d\n", user.Email, user.ID, *user.HouseholdID)
}
