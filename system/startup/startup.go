package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
)

// Config locates the boot script and the systemd units that run it and the
// controller.
type Config struct {
	InstallServices bool   `json:"install_services"`
	BootScript      string `json:"boot_script"`
	GPIOService     string `json:"gpio_service"`
	MainService     string `json:"main_service"`
	User            string `json:"user"`
	WorkDir         string `json:"work_dir"`
	ExecStart       string `json:"exec_start"`
}

func DefaultConfig() Config {
	return Config{
		BootScript:  "/usr/local/bin/appliance-gpio-init.sh",
		GPIOService: "/etc/systemd/system/appliance-gpio.service",
		MainService: "/etc/systemd/system/appliance-controller.service",
		User:        "appliance",
		WorkDir:     "/opt/appliance-controller",
		ExecStart:   "/opt/appliance-controller/appliance-controller -config-file config.json",
	}
}

// runScript is swapped in tests.
var runScript = func(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// WriteStartupScript writes a shell script that drives every relay pin to its
// inactive level, so the board stays off between boot and controller start.
func WriteStartupScript(path string, relays []gpio.Relay) error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Appliance relay pins, inactive at boot", "")

	for _, r := range relays {
		drive := "dl"
		if r.Pin.InactiveLevel() == 1 {
			drive = "dh"
		}
		lines = append(lines, fmt.Sprintf("# %s", r.Name))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", r.Pin.Number, drive))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0755)
}

func InstallStartupService(cfg Config) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure appliance GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, cfg.BootScript)

	return os.WriteFile(cfg.GPIOService, []byte(unitContents), 0644)
}

func InstallMainService(cfg Config) error {
	gpioUnitName := filepath.Base(cfg.GPIOService)

	unit := fmt.Sprintf(`[Unit]
Description=Appliance controller
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, cfg.User, cfg.WorkDir, cfg.ExecStart)

	return os.WriteFile(cfg.MainService, []byte(unit), 0644)
}

func RunStartupScript(path string) error {
	return runScript(path)
}
