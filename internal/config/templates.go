package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "modem":
		return modemTemplate, nil
	case "relay":
		return relayTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const modemTemplate = `[machine]
address = "machine-a"
tick = "50ms"

[modem]
name = "top"
max_packet_size = 8192
max_arguments = 8
system_port = 56000
relay_host = "127.0.0.1"
open_ports = [1]

[admin]
listen = "127.0.0.1:7020"
cors_origins = ["http://localhost:3000"]
token = ""

[log]
level = "info"
file = ""
max_size_mb = 16
max_backups = 3
no_color = false
`

const relayTemplate = `[relay]
listen = ":56000"

[log]
level = "info"
file = ""
`
