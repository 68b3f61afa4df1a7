package host

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// SystemdNotifier reports readiness to systemd. Outside a systemd unit with
// NOTIFY_SOCKET it does nothing.
type SystemdNotifier struct{}

func (SystemdNotifier) Ready() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}

func (SystemdNotifier) Stopping() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}
