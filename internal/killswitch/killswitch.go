// Package killswitch polls a file path (or an environment variable) at the
// start of every candidate evaluation. When the switch is engaged, the
// agent alerts once and exits cleanly with a zero status rather than
// treating the condition as an error.
package killswitch

import (
	"os"

	"github.com/blackhole-labs/liquidationd/internal/alert"
)

// Switch polls for a kill condition backed by a file's existence and/or an
// environment variable being set to a non-empty value.
type Switch struct {
	filePath string
	envVar   string
	alerter  *alert.Throttled
}

// New builds a Switch. Either filePath or envVar may be empty; at least one
// should be set for the switch to do anything.
func New(filePath, envVar string, alerter *alert.Throttled) *Switch {
	return &Switch{filePath: filePath, envVar: envVar, alerter: alerter}
}

// Engaged reports whether the kill switch is currently tripped, alerting
// (throttled) the first time it observes the condition.
func (s *Switch) Engaged() bool {
	engaged := s.fileExists() || s.envSet()
	if engaged {
		s.alerter.Fire("kill-switch", "kill switch engaged, exiting cleanly")
	}
	return engaged
}

func (s *Switch) fileExists() bool {
	if s.filePath == "" {
		return false
	}
	_, err := os.Stat(s.filePath)
	return err == nil
}

func (s *Switch) envSet() bool {
	if s.envVar == "" {
		return false
	}
	return os.Getenv(s.envVar) != ""
}
