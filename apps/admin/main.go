package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	logsvc "github.com/Brunoball/Cooperadora-sub000/services/logger"
	"github.com/Brunoball/Cooperadora-sub000/storage/database"
	sqlxrepos "github.com/Brunoball/Cooperadora-sub000/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	tables, err := discount.LoadTablesFile(conf.Pricing.DiscountTablesPath)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading discount tables: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db.DB,
		catalog: pricing.NewCatalog(sqlxrepos.NewPricingRepository(db), conf),
		periods: period.NewService(sqlxrepos.NewPeriodRepository(db)),
		tables:  tables,
		in:      os.Stdin,
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
