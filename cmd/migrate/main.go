package main

import (
	"flag"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/database/migrations"
)

func main() {
	rollback := flag.Bool("rollback", false, "revert the most recent migration")
	list := flag.Bool("list", false, "print registered migrations and exit")
	flag.Parse()

	cfg := config.LoadConfig()
	log := config.NewLogger(cfg.LogLevel)

	if *list {
		for _, id := range migrations.IDs() {
			log.Info(id)
		}
		return
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	if *rollback {
		if err := migrations.RollbackLast(db, log); err != nil {
			log.WithError(err).Fatal("Rollback failed")
		}
		return
	}
	if err := migrations.RunMigrations(db, log); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
}
