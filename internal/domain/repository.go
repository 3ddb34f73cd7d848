package domain

import (
	"context"
	"time"
)

// CommandRunner executes external commands synchronously, returning combined
// stdout+stderr and the exit code. The error is non-nil only when the process
// could not be started at all; a non-zero exit is not an error here.
// There is deliberately no timeout: partial tool output must not be evaluated.
type CommandRunner interface {
	// Run executes argv with the inherited environment.
	Run(ctx context.Context, argv []string) (output string, exitCode int, err error)

	// RunWithEnv executes argv with exactly the given environment.
	RunWithEnv(ctx context.Context, argv []string, env map[string]string) (output string, exitCode int, err error)
}

// Downloader fetches required files from their remote sources.
type Downloader interface {
	// Fetch retrieves the content at url.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// FetchSigningKey retrieves url and verifies the content parses as an
	// armored key ring before returning it.
	FetchSigningKey(ctx context.Context, url string) ([]byte, error)
}

// PackageManager wraps the host package manager (yum/rpm).
// Implementation: shells out via CommandRunner.
type PackageManager interface {
	// EnsureInstalled installs pkg when absent or updates it when present.
	// fresh is true only for a new install; txID is the undo handle for that
	// install, empty when the best-effort transaction lookup failed. Updates
	// never yield an undo handle.
	EnsureInstalled(ctx context.Context, pkg string) (fresh bool, txID string, err error)

	// InstallPackage installs pkg, returning combined output and exit code.
	InstallPackage(ctx context.Context, pkg string) (string, int, error)

	// UndoTransaction rolls back a recorded package transaction.
	UndoTransaction(ctx context.Context, txID string) error

	// ConfigModified reports whether the package-provided file at path has
	// a content-hash differing from the package default.
	ConfigModified(ctx context.Context, pkg, path string) (bool, error)
}

// ServiceManager controls systemd units.
type ServiceManager interface {
	Enable(ctx context.Context, unit string) (string, int, error)
	Start(ctx context.Context, unit string) (string, int, error)
}

// InventoryClient refreshes the host's inventory registration after a
// successful conversion.
type InventoryClient interface {
	Refresh(ctx context.Context) (string, int, error)
}

// FilePreserver manages reversible, rename-based preservation of files the
// run is about to overwrite, plus archival of prior report files.
type FilePreserver interface {
	// Preserve restores path from its .backup sibling when one exists,
	// otherwise backs path up, otherwise does nothing. Calling it twice
	// returns the filesystem to its original state.
	Preserve(path string) (PreserveAction, error)

	// Archive moves path into archiveDir under a last-modified timestamp
	// suffixed name.
	Archive(path, archiveDir string) error
}

// HostInspector reads the host's distribution identity.
type HostInspector interface {
	// DistroVersion returns the lowercase distribution name and the
	// two-component version extracted from the system identity line.
	DistroVersion() (dist, version string, err error)
}

// ProcessScanner finds running processes by name.
type ProcessScanner interface {
	FindByName(pattern string) ([]int, error)
}

// RunHistory records the verdict of each run for later audit.
type RunHistory interface {
	Append(startedAt time.Time, verdict Verdict) error
}
