package config

import (
	"os"

	altsrc "github.com/urfave/cli-altsrc/v3"
	altsrcjson "github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultConfigPath is used when RELAY_CONFIG_FILE is not set.
	DefaultConfigPath = "./config.json"
	// DefaultEnv selects the "test" profile absent an explicit --env.
	DefaultEnv = "test"
)

// ConfigFilePath resolves the JSON config file's location. It is read from
// the environment directly, ahead of flag parsing, the same way the
// reference CLI stack this node's flag wiring is modeled on resolves its
// own config path before building flags whose sources need it.
func ConfigFilePath() altsrc.StringSourcer {
	if p := os.Getenv("RELAY_CONFIG_FILE"); p != "" {
		return altsrc.StringSourcer(p)
	}
	return altsrc.StringSourcer(DefaultConfigPath)
}

// Flags returns the node's CLI surface. cluster-mode and websocket-port
// are left as plain overrides here — their real defaults come from the
// selected env profile within the config file, applied by the caller
// after Select, since the JSON key for those two fields depends on which
// profile --env names. directory-addr is a root-level config key, so it
// can be sourced straight from the file via altsrc's JSON source.
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env",
			Usage:   "configuration profile to use (test or prod)",
			Value:   DefaultEnv,
			Sources: cli.NewValueSourceChain(cli.EnvVar("RELAY_ENV")),
		},
		&cli.BoolFlag{
			Name:  "cluster-mode",
			Usage: "override the selected profile's cluster_mode",
		},
		&cli.StringFlag{
			Name:  "websocket-port",
			Usage: "override the selected profile's websocket_port",
		},
		&cli.StringFlag{
			Name:  "peer-addr",
			Usage: "this node's peer-listener bind address (cluster mode)",
		},
		&cli.StringFlag{
			Name:  "chat-host",
			Usage: "host:port this node advertises; the handshake rejects any other Host header",
		},
		&cli.StringFlag{
			Name:  "directory-addr",
			Usage: "Redis address backing the cross-node directory",
			Value: "127.0.0.1:6379",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("RELAY_DIRECTORY_ADDR"),
				altsrcjson.JSON("directory_addr", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}
