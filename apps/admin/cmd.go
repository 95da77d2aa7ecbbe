package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp         = errors.New("help provided")
	errNotConfirmed = errors.New("deletion not confirmed")
)

type commandLine struct {
	db      *sql.DB
	catalog *pricing.Catalog
	periods *period.Service
	tables  discount.Tables
	in      io.Reader
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run goose COMMAND (up, down, status, ...) on the embedded migrations")
	fmt.Fprintln(cli.out, "  setfee -amount N - record a new enrollment fee, effective now")
	fmt.Fprintln(cli.out, "  deleteperiod -student ID -year YEAR -period CODE [-yes] - delete a recorded period")
	fmt.Fprintln(cli.out, "  state -student ID -year YEAR - print the recorded periods of a student")
	fmt.Fprintln(cli.out, "  discounts - print the sibling discount tables")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	setFeeCmd := cli.newFlagSet("setfee")
	setFeeAmount := setFeeCmd.Int64("amount", -1, "The new enrollment fee, in whole currency units.")

	deletePeriodCmd := cli.newFlagSet("deleteperiod")
	deleteStudent := deletePeriodCmd.Int64("student", 0, "The student ID.")
	deleteYear := deletePeriodCmd.Int("year", 0, "The ledger year.")
	deletePeriod := deletePeriodCmd.String("period", "", "The period code, e.g. Month3, AnnualFirstHalf, Enrollment.")
	deleteYes := deletePeriodCmd.Bool("yes", false, "Do not ask for confirmation.")

	stateCmd := cli.newFlagSet("state")
	stateStudent := stateCmd.Int64("student", 0, "The student ID.")
	stateYear := stateCmd.Int("year", 0, "The ledger year.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "setfee":
		if err := setFeeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setFeeAmount < 0 {
			setFeeCmd.Usage()
			return errHelp
		}
		return cli.setFee(ctx, *setFeeAmount)

	case "deleteperiod":
		if err := deletePeriodCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deleteStudent <= 0 || *deleteYear == 0 || *deletePeriod == "" {
			deletePeriodCmd.Usage()
			return errHelp
		}
		p, err := period.Parse(*deletePeriod)
		if err != nil {
			return err
		}
		if !*deleteYes {
			if err = cli.confirm(fmt.Sprintf("Delete %s %d of student %d?", p.Label(), *deleteYear, *deleteStudent)); err != nil {
				return err
			}
		}
		return cli.deletePeriod(ctx, *deleteStudent, *deleteYear, p)

	case "state":
		if err := stateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *stateStudent <= 0 || *stateYear == 0 {
			stateCmd.Usage()
			return errHelp
		}
		return cli.printState(ctx, *stateStudent, *stateYear)

	case "discounts":
		fmt.Fprint(cli.out, cli.tables.String())
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks on an interactive terminal. Without one, -yes is required.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc(int(syscall.Stdin)) {
		return errors.New("not a terminal: use -yes to confirm")
	}
	fmt.Fprintf(cli.out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errNotConfirmed
}

func (cli *commandLine) setFee(ctx context.Context, amount int64) error {
	fee, err := cli.catalog.UpdateEnrollmentFee(ctx, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "enrollment fee set to %d, effective %s\n", fee.Amount, fee.EffectiveFrom.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func (cli *commandLine) deletePeriod(ctx context.Context, studentID int64, year int, p period.Period) error {
	if err := cli.periods.Delete(ctx, studentID, year, p); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %s %d of student %d\n", p, year, studentID)
	return nil
}

func (cli *commandLine) printState(ctx context.Context, studentID int64, year int) error {
	st, err := cli.periods.GetState(ctx, studentID, year)
	if err != nil {
		return err
	}
	if st.IsEmpty() {
		fmt.Fprintf(cli.out, "student %d: nothing recorded in %d\n", studentID, year)
		return nil
	}
	fmt.Fprintf(cli.out, "student %d, %d:\n", studentID, year)
	for _, rec := range st.Records() {
		fmt.Fprintf(cli.out, "  %-18s %-8s %10d  %s\n", rec.Period, rec.Status, rec.Amount, rec.CreatedAt.Format("2006-01-02"))
	}
	if half, ok := st.ImpliedRemainingHalf(); ok {
		fmt.Fprintf(cli.out, "  remaining: %s\n", half)
	}
	return nil
}
