// Package notify shows desktop notifications for session failures and
// review results.
package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/manikosto/talkkey/log"
)

func init() {
	beeep.AppName = "talkkey"
}

var show = func(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Desktop delivers notifications through the platform notification service.
// A disabled Desktop only logs.
type Desktop struct {
	Disabled bool
}

func (d Desktop) Notify(title, body string) error {
	log.Infof("notify: %s: %s", title, body)
	if d.Disabled {
		return nil
	}
	return show(title, body)
}
