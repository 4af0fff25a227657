// Package config resolves the on-disk state directory and the persistent
// configuration file. The layout is flat: {state_dir}/config.json,
// {state_dir}/logs/, and {state_dir}/qorvex_{session}.sock.
package config

import (
	"os"
	"path/filepath"
)

const dirName = ".qorvex"

// StateDir resolves {home}/.qorvex, the per-user directory holding
// config.json, the log directory, and IPC sockets.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}

// LogDir returns {state_dir}/logs.
func LogDir(stateDir string) string {
	return filepath.Join(stateDir, "logs")
}

// EnsureStateDirs creates the state directory and its logs subdirectory if
// they do not already exist.
func EnsureStateDirs(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(LogDir(stateDir), 0755)
}

// ConfigPath returns {state_dir}/config.json.
func ConfigPath(stateDir string) string {
	return filepath.Join(stateDir, "config.json")
}

// SocketPath returns {state_dir}/qorvex_{session}.sock.
func SocketPath(stateDir, session string) string {
	return filepath.Join(stateDir, "qorvex_"+session+".sock")
}

// LogFilePath returns {state_dir}/logs/{session}_{YYYYmmdd_HHMMSS}.jsonl
// for a log opened at timestamp formatted as stamp (caller formats it, to
// keep this package free of a wall-clock dependency).
func LogFilePath(stateDir, session, stamp string) string {
	return filepath.Join(LogDir(stateDir), session+"_"+stamp+".jsonl")
}
