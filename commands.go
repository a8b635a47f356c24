package main

import (
	"context"
	"fmt"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/config"
	"github.com/draftledger/draftledger/backend/go-services/internal/database"
	"github.com/draftledger/draftledger/backend/go-services/internal/database/migrations"
	"github.com/draftledger/draftledger/backend/go-services/internal/revocation"
	"github.com/draftledger/draftledger/backend/go-services/internal/tokens"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite document schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != "sqlite" {
				return fmt.Errorf("migrate only applies to STORAGE_BACKEND=sqlite (got %s)", cfg.Storage.Backend)
			}
			db, err := database.OpenSQLite(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()
			if statusOnly {
				if err := migrations.CheckStatus(db); err != nil {
					return err
				}
				logger.Infof("schema at %s is up to date", cfg.Storage.SQLitePath)
				return nil
			}
			if err := migrations.MigrateUp(db); err != nil {
				return err
			}
			logger.Infof("migrations applied to %s", cfg.Storage.SQLitePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only check that the schema is current")
	return cmd
}

func newRevokeTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "revoke-token <token>",
		Short: "Refuse a bearer token until it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled() {
				return fmt.Errorf("REDIS_HOST is required to revoke tokens")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			rdb, err := openRedis(ctx, cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenTTL
				if cfg.JWT.Secret != "" {
					// our own tokens carry their expiry; other issuers fall back to the default
					if left, err := tokens.NewHMACVerifier(cfg.JWT.Secret, cfg.JWT.Issuer).Remaining(args[0]); err == nil && left > 0 {
						ttl = left
					}
				}
			}
			if err := revocation.NewStore(rdb).Revoke(ctx, args[0], ttl); err != nil {
				return err
			}
			logger.Infow("token revoked", "ttl", ttl)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "how long to refuse the token (default: its remaining lifetime)")
	return cmd
}

func newIssueTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue-token <caller id>",
		Short: "Mint an HS256 token for AUTH_MODE=jwt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenTTL
			}
			tok, err := tokens.Issue(cfg.JWT.Secret, cfg.JWT.Issuer, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: JWT_ACCESS_TOKEN_TTL)")
	return cmd
}
