package tracking

import (
	"github.com/sirupsen/logrus"
)

// Logger emits metric records through a logrus logger, one structured
// entry per record. The label distinguishes the emitting component,
// for example "learner" or "train_loop".
type Logger struct {
	log   *logrus.Logger
	label string
}

// NewLogger returns a Logger writing to log under label
func NewLogger(log *logrus.Logger, label string) *Logger {
	return &Logger{log: log, label: label}
}

// Label returns the Logger's label
func (l *Logger) Label() string {
	return l.label
}

// Write emits one metric record
func (l *Logger) Write(record map[string]float64) {
	fields := make(logrus.Fields, len(record)+1)
	fields["label"] = l.label
	for key, value := range record {
		fields[key] = value
	}
	l.log.WithFields(fields).Info("metrics")
}
