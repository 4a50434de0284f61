package main

import (
	"context"
	"flag"
	"log"

	"scan-licences/internal/config"
	"scan-licences/internal/logger"
	"scan-licences/internal/service"
)

func main() {
	configFile := flag.String("config", "", "config file")
	seedFile := flag.String("operators", "", "YAML file listing operators to allow-list")
	email := flag.String("email", "", "operator email to add or reset")
	name := flag.String("name", "", "operator display name")
	password := flag.String("password", "", "operator password")
	admin := flag.Bool("admin", false, "operator may delete entries and run backups")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log, "dbinit")

	db, err := cfg.OpenGormDB()
	if err != nil {
		log.Fatal("db connect failed: ", err)
	}

	service.SetQueryTimeout(cfg.QueryTimeout())

	// Step 1: schema
	if err := service.Migrate(db); err != nil {
		log.Fatal("migrate failed: ", err)
	}
	logger.Info("dbinit: schema migrated", "driver", cfg.Database.Driver)

	// Step 2: operators
	var ops []operatorSeed
	if *seedFile != "" {
		if ops, err = loadSeeds(*seedFile); err != nil {
			log.Fatal(err)
		}
	}
	if *email != "" {
		ops = append(ops, operatorSeed{Email: *email, Name: *name, Password: *password, Admin: *admin})
	}
	if err := seedOperators(context.Background(), service.NewAuthService(db), ops); err != nil {
		log.Fatal("seed operators failed: ", err)
	}

	logger.Info("=== all done ===")
}
