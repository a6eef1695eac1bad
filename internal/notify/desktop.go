package notify

import (
	"fmt"
	"os/exec"
)

// DesktopDisplay renders through the freedesktop notify-send tool, which the
// agent relies on for Linux desktops.
type DesktopDisplay struct {
	binPath string
	appName string
}

// NewDesktopDisplay locates notify-send. A missing binary is reported as
// denied permission rather than an error on every Show.
func NewDesktopDisplay(appName string) *DesktopDisplay {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		path = ""
	}
	return &DesktopDisplay{binPath: path, appName: appName}
}

func (d *DesktopDisplay) Permission() Permission {
	if d.binPath == "" {
		return PermissionDenied
	}
	return PermissionGranted
}

func (d *DesktopDisplay) Show(n Notification) (Handle, error) {
	if d.binPath == "" {
		return nil, fmt.Errorf("notify-send not available")
	}
	cmd := exec.Command(d.binPath, "--app-name", d.appName, n.Title, n.Body)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("notify-send: %w", err)
	}
	// notify-send offers no programmatic close; the desktop expires it.
	return nil, nil
}
