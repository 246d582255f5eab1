package notify

import (
	log "log/slog"

	"github.com/gen2brain/beeep"
)

const appName = "rollcage"

// Desktop sends notifications through the session notification daemon.
type Desktop struct {
	enabled bool
	send    func(title, message string, icon any) error
}

func NewDesktop(enabled bool) *Desktop {
	return &Desktop{enabled: enabled, send: beeep.Notify}
}

// Notify never fails the caller; a missing notification daemon is only
// logged.
func (d *Desktop) Notify(message string) {
	if d == nil || !d.enabled {
		return
	}
	if err := d.send(appName, message, ""); err != nil {
		log.Debug("Desktop notification failed", "err", err)
	}
}
