package main

import (
	"database/sql"

	"github.com/trezcool/goose"

	appfs "github.com/Brunoball/Cooperadora-sub000/fs"
)

type migrateFunc func(command string, db *sql.DB, args ...string) error

// runs goose on the embedded migrations
var gooseRunFunc migrateFunc = func(command string, db *sql.DB, args ...string) error { // mockable
	return goose.RunFS(command, db, appfs.FS, "migrations", args...)
}

func (cli *commandLine) migrate(args []string) error {
	if len(args) == 0 {
		return errHelp
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, arguments...)
}
