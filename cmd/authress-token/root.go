package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authress/internal/config"
	"github.com/aussiebroadwan/authress/pkg/authress"
	"github.com/aussiebroadwan/authress/pkg/slogx"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "authress-token",
	Short: "Inspect the credentials the Authress SDK would present",
	Long: `authress-token resolves the authorization value the SDK would send, using
the same configuration the SDK reads from the environment:

  AUTHRESS_BASE_URL            account API host (required)
  AUTHRESS_API_KEY             static API key
  AUTHRESS_ASSERTION           identity provider JWT, exchanged for a bearer token
  AUTHRESS_PREFERRED_AUDIENCE  audience to bind the session to
  AUTHRESS_APPLICATION_ID      application sent with the exchange
  AUTHRESS_SAFETY_MARGIN       subtracted from token lifetimes (default 60s)
  AUTHRESS_TIMEOUT             per-request HTTP timeout (default 10s)
  LOG_LEVEL, LOG_FORMAT, ENV   logging
`,
	SilenceUsage: true,
	Version:      version,
}

// newClient builds an SDK client from the environment.
func newClient() (*authress.Client, *slog.Logger, error) {
	cfg := config.Load()
	if errs := cfg.Validate(); errs != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %s", formatErrors(errs))
	}

	logger := slogx.New(slogx.Config{
		Service: "authress-token",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	client, err := authress.NewClient(cfg.ClientConfig(logger, nil))
	if err != nil {
		return nil, nil, err
	}

	if cfg.APIKey == "" {
		client.Login().SetIdentityAssertion(cfg.Assertion, cfg.PreferredAudience)
	}

	return client, logger, nil
}

func formatErrors(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for _, k := range slices.Sorted(maps.Keys(errs)) {
		parts = append(parts, k+": "+errs[k])
	}
	return strings.Join(parts, ", ")
}

// describe turns login failures into a hint about what to fix.
func describe(err error) error {
	switch {
	case errors.Is(err, authress.ErrInvalidCredentialConfiguration):
		return fmt.Errorf("%w (set AUTHRESS_API_KEY or AUTHRESS_ASSERTION)", err)
	case errors.Is(err, authress.ErrIdentityAssertionRejected):
		return fmt.Errorf("%w (check the assertion's expiry and audience)", err)
	case errors.Is(err, authress.ErrTransportFailure):
		return fmt.Errorf("%w (service unreachable, retry later)", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w (raise AUTHRESS_TIMEOUT)", err)
	default:
		return err
	}
}
