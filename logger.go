package xconn

import "github.com/sirupsen/logrus"

// Log is the logger used by this package. Replace it to redirect or
// silence output; it defaults to logrus' standard logger at info level.
var Log logrus.FieldLogger = logrus.StandardLogger()

// logger returns a per-call entry carrying the fields every trail event
// should be correlated by.
func logger(trail, method, path string) logrus.FieldLogger {
	return Log.WithFields(logrus.Fields{
		"trail":  trail,
		"method": method,
		"path":   path,
	})
}
