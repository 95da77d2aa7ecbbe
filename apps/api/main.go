package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/Brunoball/Cooperadora-sub000/apps/api/echo"
	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/receipt"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
	emailsvc "github.com/Brunoball/Cooperadora-sub000/services/email"
	logsvc "github.com/Brunoball/Cooperadora-sub000/services/logger"
	"github.com/Brunoball/Cooperadora-sub000/storage/database"
	dummydb "github.com/Brunoball/Cooperadora-sub000/storage/database/dummy"
	sqlxrepos "github.com/Brunoball/Cooperadora-sub000/storage/database/sqlx"
)

type repositories struct {
	students student.Repository
	families family.Repository
	periods  period.Repository
	pricing  pricing.Repository
	closer   io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	repos, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = repos.closer.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	tables, err := discount.LoadTablesFile(conf.Pricing.DiscountTablesPath)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading discount tables: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	studentSvc := student.NewService(repos.students)
	periodSvc := period.NewService(repos.periods)
	familySvc := family.NewService(repos.families, repos.students)
	catalog := pricing.NewCatalog(repos.pricing, conf)
	engine := ledger.NewEngine(ledger.EngineDeps{
		Conf:     conf,
		Logger:   logger,
		Students: repos.students,
		Periods:  repos.periods,
		Catalog:  catalog,
		Families: familySvc,
		Resolver: discount.NewResolver(tables, logger),
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	period.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Students:   studentSvc,
			Periods:    periodSvc,
			Catalog:    catalog,
			Families:   familySvc,
			Engine:     engine,
			Expander:   ledger.NewExpander(engine, familySvc, logger),
			Receipts:   receipt.NewService(mailSvc, conf),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpStorage(conf *core.Config) (repositories, error) {
	if conf.Storage == "memory" {
		db, err := dummydb.Open()
		if err != nil {
			return repositories{}, err
		}
		return repositories{
			students: dummydb.NewStudentRepository(db),
			families: dummydb.NewFamilyRepository(db),
			periods:  dummydb.NewPeriodRepository(db),
			pricing:  dummydb.NewPricingRepository(db),
			closer:   nopCloser{},
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return repositories{}, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return repositories{}, err
	}
	return repositories{
		students: sqlxrepos.NewStudentRepository(db),
		families: sqlxrepos.NewFamilyRepository(db),
		periods:  sqlxrepos.NewPeriodRepository(db),
		pricing:  sqlxrepos.NewPricingRepository(db),
		closer:   db,
	}, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
