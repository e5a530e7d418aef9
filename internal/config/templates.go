package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "cluster":
		return clusterTemplate, nil
	case "rank":
		return rankTemplate, nil
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

const clusterTemplate = `name = "ring"
dims = [64, 64]
periodic = [true, true]
stencil = "laplacian"
iterations = 10
seed = 1

# extra or overriding weights
[[branch]]
disp = [1, 1]
weight = 0.25

[[peer]]
rank = 0
addr = "127.0.0.1:7100"
admin = "127.0.0.1:7200"

[[peer]]
rank = 1
addr = "127.0.0.1:7101"
admin = "127.0.0.1:7201"

[transport]
connect_timeout = "10s"
read_timeout = "0s"
write_timeout = "5s"
max_payload_bytes = 67108864
`

const rankTemplate = `rank = 0
listen = "0.0.0.0:7100"
admin_addr = "127.0.0.1:7200"
log_level = "info"
# admin_token = "change-me"
`
