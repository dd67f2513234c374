package collator

import (
	"os"

	"github.com/sirupsen/logrus"
)

// defaultLogger returns a logrus logger writing structured text diagnostics
// to stderr, matching spec.md §7's "one line naming the failed operation"
// requirement without committing the library itself to a process exit —
// that decision belongs to the caller (see cmd/harness for the reference
// fail-stop wrapper).
func defaultLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
