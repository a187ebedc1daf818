// Package config defines the on-disk configuration shape for a relay node
// and the environment-profile selection layered on top of it.
package config

import (
	"encoding/json/v2"
	"fmt"
	"os"
)

// Profile is one deployment environment's settings, per spec: whether this
// node runs in cluster mode (directory + peer fabric enabled) and which
// TCP port it listens for client connections on.
type Profile struct {
	ClusterMode   bool   `json:"cluster_mode"`
	WebsocketPort string `json:"websocket_port"`
}

// File is the shape of the on-disk config file: one profile per
// environment, selected at startup by the --env flag. This mirrors the
// original service's test/prod profile split rather than a single flat
// object, so the same file can describe both a local dev run and a
// production one.
type File struct {
	Test Profile `json:"test"`
	Prod Profile `json:"prod"`
	// DirectoryAddr is a root-level field rather than per-profile: the
	// same Redis instance backs both environments in a typical deployment.
	DirectoryAddr string `json:"directory_addr,omitempty"`
}

// Default returns the built-in fallback configuration used when no config
// file is present: the test profile with cluster mode off, the prod profile
// with cluster mode on, both on the fixed port 3999.
func Default() File {
	return File{
		Test: Profile{ClusterMode: false, WebsocketPort: "3999"},
		Prod: Profile{ClusterMode: true, WebsocketPort: "3999"},
	}
}

// Load reads and parses the JSON config file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// Select returns the named profile ("test" or "prod").
func (f File) Select(env string) (Profile, error) {
	switch env {
	case "test":
		return f.Test, nil
	case "prod":
		return f.Prod, nil
	default:
		return Profile{}, fmt.Errorf("config: unknown environment %q", env)
	}
}
