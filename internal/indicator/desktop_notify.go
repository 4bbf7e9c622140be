package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyIface  = "org.freedesktop.Notifications"
	notifyMethod = "Notify"
	notifySig    = "susssasa{sv}i"
)

// Freedesktop urgency hint values.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// desktopMessage is one Notify call. ReplaceID 0 asks the server for a new
// notification.
type desktopMessage struct {
	AppName   string
	ReplaceID uint32
	Icon      string
	Summary   string
	Body      string
	Urgency   byte
	TimeoutMS int
}

// args renders the message as busctl call arguments, with the urgency
// passed as the only hint.
func (m desktopMessage) args() []string {
	return []string{
		"--user", "call", notifyDest, notifyPath, notifyIface, notifyMethod, notifySig,
		m.AppName,
		strconv.FormatUint(uint64(m.ReplaceID), 10),
		m.Icon,
		m.Summary,
		m.Body,
		"0",
		"1", "urgency", "y", strconv.Itoa(int(m.Urgency)),
		strconv.Itoa(m.TimeoutMS),
	}
}

// desktopNotify sends msg and returns the ID the server assigned.
func desktopNotify(ctx context.Context, msg desktopMessage) (uint32, error) {
	out, err := busctl(ctx, "desktop notify", msg.args())
	if err != nil {
		return 0, err
	}
	return parseNotificationID(out)
}

// parseNotificationID reads busctl's "u <id>" reply.
func parseNotificationID(out string) (uint32, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "desktop dismiss", []string{
		"--user", "call", notifyDest, notifyPath, notifyIface, "CloseNotification", "u",
		strconv.FormatUint(uint64(id), 10),
	})
	return err
}

func busctl(ctx context.Context, op string, args []string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("%s failed: %w", op, err)
		}
		return "", fmt.Errorf("%s failed: %w (%s)", op, err, trimmed)
	}
	return trimmed, nil
}
