package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/initializ/skillforge/internal/auditlog"
	"github.com/initializ/skillforge/internal/credential"
	"github.com/initializ/skillforge/internal/dispatch/containerexec"
	"github.com/initializ/skillforge/internal/manifest"
	"github.com/initializ/skillforge/internal/session"
)

// loadManager parses the manifest at cfgFile and wires a session.Manager
// against it, mirroring forge-cli/cmd/common.go's loadAndPrepareConfig:
// load, validate-by-parsing, then build the runtime collaborators every
// subcommand needs.
func loadManager() (*session.Manager, error) {
	m, err := manifest.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading manifest %s: %w", cfgFile, err)
	}
	resolver := manifest.NewResolver(m, nil, nil)

	store := credential.New(buildCredentialBackend(), auditlog.NewAuditLogger(os.Stderr))

	// A missing or unreachable docker daemon only disables container-runtime
	// skills; every wasm/host-command skill still works without it.
	dockerClient, _ := containerexec.NewDockerClient()

	return session.NewManager(session.ManagerConfig{
		Resolver:        resolver,
		Credentials:     store,
		Audit:           auditlog.NewAuditLogger(os.Stderr),
		ContainerClient: dockerClient,
	}), nil
}

// loadCredentialStore builds a Store directly, for the credential subcommand
// family that manages secrets without spinning up a full session.Manager.
func loadCredentialStore() *credential.Store {
	return credential.New(buildCredentialBackend(), auditlog.NewAuditLogger(os.Stderr))
}

// buildCredentialBackend chains the OS keychain ahead of an encrypted file
// fallback, the same primary-then-fallback shape forge-cli/cmd/secret.go
// uses for its own secrets chain.
func buildCredentialBackend() credential.Backend {
	home, err := os.UserHomeDir()
	path := ".skillforge/secrets.enc"
	if err == nil {
		path = home + "/.skillforge/secrets.enc"
	}
	return credential.NewChainBackend(
		credential.NewKeyringBackend(),
		credential.NewEncryptedFileBackend(path, resolvePassphrase),
	)
}

// resolvePassphrase returns SKILLFORGE_PASSPHRASE if set, else prompts on
// the terminal with input hidden.
func resolvePassphrase() (string, error) {
	if p := os.Getenv("SKILLFORGE_PASSPHRASE"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(raw), nil
}

// correlatedContext tags ctx with a fresh correlation ID so every audit
// record emitted during one CLI invocation can be grouped together.
func correlatedContext() context.Context {
	return auditlog.WithCorrelationID(context.Background(), uuid.NewString())
}
