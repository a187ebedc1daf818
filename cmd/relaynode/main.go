// Command relaynode runs one node of the chat relay fleet: it accepts
// client WebSocket connections on --websocket-port, optionally joins the
// cluster via a Redis-backed directory and a peer-forward listener, and
// runs until killed.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/cluster23/relay/internal/config"
	"github.com/cluster23/relay/internal/node"
)

func main() {
	configPath := config.ConfigFilePath()

	cmd := &cli.Command{
		Name:  "relaynode",
		Usage: "horizontally-scalable WebSocket chat relay node",
		Flags: config.Flags(configPath),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "relaynode: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("pretty-log"))

	file, err := config.Load(string(config.ConfigFilePath()))
	if err != nil {
		logger.Warn().Err(err).Msg("config file unreadable, falling back to built-in defaults")
		file = config.Default()
	}

	env := cmd.String("env")
	profile, err := file.Select(env)
	if err != nil {
		return err
	}

	clusterMode := profile.ClusterMode
	if cmd.IsSet("cluster-mode") {
		clusterMode = cmd.Bool("cluster-mode")
	}
	websocketPort := profile.WebsocketPort
	if cmd.IsSet("websocket-port") {
		websocketPort = cmd.String("websocket-port")
	}
	if websocketPort == "" {
		websocketPort = "3999"
	}

	directoryAddr := cmd.String("directory-addr")
	if directoryAddr == "" {
		directoryAddr = file.DirectoryAddr
	}

	clientAddr := net.JoinHostPort("127.0.0.1", websocketPort)
	chatHost := cmd.String("chat-host")
	if chatHost == "" {
		chatHost = clientAddr
	}

	peerAddr := cmd.String("peer-addr")
	if clusterMode && peerAddr == "" {
		addr, err := randomLoopbackAddr()
		if err != nil {
			return fmt.Errorf("choose peer-listener address: %w", err)
		}
		peerAddr = addr
	}

	n, err := node.New(ctx, node.Config{
		Host:          chatHost,
		ClientAddr:    clientAddr,
		PeerAddr:      peerAddr,
		ClusterMode:   clusterMode,
		DirectoryAddr: directoryAddr,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("env", env).
		Str("client_addr", clientAddr).
		Bool("cluster_mode", clusterMode).
		Str("peer_addr", peerAddr).
		Msg("relaynode starting")

	return n.Serve(ctx)
}

// randomLoopbackAddr lets the OS pick an unused loopback port, matching
// this system's "node address is derived at startup" contract without
// risking a collision a literal random-u16 guess could hit.
func randomLoopbackAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	return addr, ln.Close()
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
