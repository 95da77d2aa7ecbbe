// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
	logsvc "github.com/Brunoball/Cooperadora-sub000/services/logger"
	"github.com/Brunoball/Cooperadora-sub000/storage/database"
)

// NewConfig returns a TEST config that does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Cooperadora",
		Currency:         "ARS",
		DefaultFromEmail: mail.Address{Name: "Cooperadora", Address: "noreply@test.ar"},
		Storage:          "memory",
		Server:           core.ServerConfig{Host: "localhost", Port: "8000", ShutdownTimeout: time.Second},
		Ledger:           core.LedgerConfig{MinYear: 2000, MaxYear: 2100},
	}
}

// NewLogger returns a logger that reports nothing.
func NewLogger() *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
	logger.Enable(false)
	return logger
}

func CreateCategory(t *testing.T, repo pricing.Repository, name string, monthly, annual int64) pricing.Category {
	cat, err := repo.CreateCategory(context.Background(), pricing.Category{Name: name, Monthly: monthly, Annual: annual})
	if err != nil {
		t.Fatalf("createCategory() failed: %v", err)
	}
	return cat
}

func CreateStudent(t *testing.T, repo student.Repository, name, email string, categoryID int64, enrolledAt ...time.Time) student.Student {
	enrolled := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if len(enrolledAt) > 0 {
		enrolled = enrolledAt[0].UTC()
	}
	stud, err := repo.CreateStudent(context.Background(), student.Student{
		DisplayName:    name,
		Email:          email,
		CategoryID:     categoryID,
		EnrollmentDate: enrolled,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return stud
}

// CreateFamily groups students; inactive lists the members that left the family.
func CreateFamily(t *testing.T, repo family.Repository, name string, studs []student.Student, inactive ...int64) family.Family {
	off := make(map[int64]bool, len(inactive))
	for _, id := range inactive {
		off[id] = true
	}
	fam := family.Family{Name: name}
	for _, s := range studs {
		fam.Members = append(fam.Members, family.Member{StudentID: s.ID, DisplayName: s.DisplayName, Active: !off[s.ID]})
	}
	fam, err := repo.CreateFamily(context.Background(), fam)
	if err != nil {
		t.Fatalf("createFamily() failed: %v", err)
	}
	return fam
}

// PrepareDB connects to the test database described by the TEST env config and empties it.
// The test is skipped when ENV is not TEST.
func PrepareDB(t *testing.T) *sqlx.DB {
	if os.Getenv("ENV") != "TEST" {
		t.Skip("no test database: set ENV=TEST to run database tests")
	}
	conf := core.NewConfig()

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	q := `TRUNCATE period_record, family_member, student, family, enrollment_fee, category RESTART IDENTITY CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}
