package core

// Logger is any service that can log & report messages.
// expected args: error | map[string]interface{} (extra data) | Person
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies who a logged event is about, e.g. the student a ledger failure concerns.
type Person struct {
	ID    string
	Name  string
	Email string
}
