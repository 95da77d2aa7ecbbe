package logsvc

import (
	"log"
	"strings"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/Brunoball/Cooperadora-sub000/core"
)

// rollbar holds a single process-wide person: setting it and reporting an item
// must not interleave with another report, from any logger.
var personMu sync.Mutex

// RollbarLogger reports ledger events to rollbar and mirrors them to a std logger.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// splitPerson separates the student an event concerns from the remaining args.
// Only the first core.Person counts; later ones are dropped.
func splitPerson(args []interface{}) (core.Person, bool, []interface{}) {
	var (
		person core.Person
		found  bool
	)
	rest := make([]interface{}, 0, len(args))
	for _, arg := range args {
		p, ok := arg.(core.Person)
		if !ok {
			rest = append(rest, arg)
			continue
		}
		if !found {
			person, found = p, true
		}
	}
	return person, found, rest
}

// log reports msg at level. A core.Person among args becomes the rollbar person
// of this item only: its ID is the student ID, Name and Email the student's contact.
func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	person, found, rest := splitPerson(args)

	personMu.Lock()
	if found {
		rollbar.SetPerson(person.ID, person.Name, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, append([]interface{}{msg}, rest...)...)
	personMu.Unlock()

	prefix := strings.ToUpper(level)
	if found {
		l.std.Printf("%s [student %s] %s", prefix, person.ID, msg)
	} else {
		l.std.Printf("%s %s", prefix, msg)
	}
	for _, arg := range rest {
		l.std.Printf("%+v", arg)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
