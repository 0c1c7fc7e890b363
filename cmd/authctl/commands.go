package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bottle-monitor/backend/internal/app"
	identityservice "bottle-monitor/backend/internal/identity/service"
)

// builder opens the wired service for one command invocation.
type builder func(ctx context.Context) (*app.App, error)

// operatorID is recorded as the issuer of credentials minted from the CLI.
const operatorID = "authctl"

func newRootCmd(build builder) *cobra.Command {
	root := &cobra.Command{
		Use:   "authctl",
		Short: "Operate the bottle-monitor credential store",
		Long: `authctl manages principals and credentials directly against the
configured store backend (STORE_BACKEND). It reads the same environment and
.env file as the server.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newSeedCmd(build),
		newRevokeCmd(build),
		newSetDisabledCmd(build, "disable", true),
		newSetDisabledCmd(build, "enable", false),
		newSessionsCmd(build),
		newDeviceCmd(build),
		newHashPasswordCmd(build),
	)
	return root
}

// withApp builds the service, runs fn and closes it.
func withApp(cmd *cobra.Command, build builder, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}

func newSeedCmd(build builder) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a password principal",
		Long:  `Create a password principal. Exits successfully if the email is already registered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				p, err := a.Auth.Register(ctx, email, password, name)
				if errors.Is(err, identityservice.ErrEmailAlreadyRegistered) {
					fmt.Fprintf(cmd.OutOrStdout(), "principal %s already exists\n", email)
					return nil
				}
				if identityservice.IsValidation(err) {
					return fmt.Errorf("invalid argument: %w", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created principal %s (%s)\n", p.ID, p.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "principal email")
	cmd.Flags().StringVar(&password, "password", "", "principal password (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRevokeCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <principal-id>",
		Short: "End every session of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.LogoutPrincipal(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked sessions of %s\n", args[0])
				return nil
			})
		},
	}
}

func newSetDisabledCmd(build builder, use string, disabled bool) *cobra.Command {
	short := "Allow a principal to log in again"
	if disabled {
		short = "Prevent a principal from logging in or refreshing"
	}
	return &cobra.Command{
		Use:   use + " <principal-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.SetDisabled(ctx, args[0], disabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
				return nil
			})
		},
	}
}

func newSessionsCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <principal-id>",
		Short: "List refresh token lineages of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				lineages, err := a.Auth.Sessions(ctx, args[0])
				if err != nil {
					return err
				}
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"ID", "CREATED", "EXPIRES", "CURRENT"})
				for _, l := range lineages {
					expires := "never"
					if !l.ExpiresAt.IsZero() {
						expires = l.ExpiresAt.Format(time.RFC3339)
					}
					t.AppendRow(table.Row{l.ID, l.CreatedAt.Format(time.RFC3339), expires, l.Current})
				}
				t.Render()
				return nil
			})
		},
	}
}

func newDeviceCmd(build builder) *cobra.Command {
	device := &cobra.Command{
		Use:   "device",
		Short: "Device credential commands",
	}
	var issuedBy string
	issue := &cobra.Command{
		Use:   "issue <device-id> <resource-id>",
		Short: "Mint a non-expiring device credential",
		Long: `Mint a device credential binding device-id to resource-id. The token is
printed once and is not stored; it stays valid until the device signing key changes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				token, err := a.Auth.IssueDeviceCredential(ctx, issuedBy, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&issuedBy, "issued-by", operatorID, "principal recorded as issuer in the audit trail")
	device.AddCommand(issue)
	return device
}

func newHashPasswordCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the argon2id hash of a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, build, func(_ context.Context, a *app.App) error {
				hash, err := a.Hasher.Hash(password)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			})
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must not be empty")
	}
	return line, nil
}
