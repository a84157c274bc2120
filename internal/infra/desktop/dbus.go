//go:build linux

package desktop

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/osa030/vibestream/internal/app/notification"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"

	expireTimeoutMs = int32(5000)
)

// Notifier sends notifications via D-Bus. It replaces its previous
// notification so only one is shown at a time.
type Notifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu         sync.Mutex
	replacesID uint32
	lastSongID string
}

// New connects to the session bus. It returns nil when D-Bus is unavailable.
func New() *Notifier {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil
	}
	return &Notifier{conn: conn, obj: conn.Object(dbusNotifyDest, dbusNotifyPath)}
}

// Update shows a notification when the song changes.
func (n *Notifier) Update(ctx context.Context, np notification.NowPlaying) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	summary, body, ok := message(np, n.lastSongID)
	if !ok {
		return nil
	}

	hints := map[string]dbus.Variant{
		"desktop-entry": dbus.MakeVariant("vibestream"),
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := n.obj.CallWithContext(ctx,
		dbusNotifyInterface+".Notify",
		0,
		"Vibestream",
		n.replacesID,
		"audio-x-generic",
		summary,
		body,
		[]string{},
		hints,
		expireTimeoutMs,
	)
	if call.Err != nil {
		return call.Err
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return err
	}
	n.replacesID = id
	n.lastSongID = np.SongID
	return nil
}

// Close closes the session bus connection.
func (n *Notifier) Close() error {
	return n.conn.Close()
}
