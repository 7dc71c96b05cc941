package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/medisched/medisched/internal/config"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/db"
	"github.com/medisched/medisched/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medisched-server",
		Short: "Clinic scheduling and medical records API server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	root.AddCommand(tokenCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationsFS returns dir as a filesystem, or the embedded migrations when
// dir is empty. --dir wins over MIGRATIONS_DIR.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationsFS(dir)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, db.NewMigrator(pool, migrationsFS(dir))); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(createCmd)

	return cmd
}

// tokenCmd mints HS256 tokens for local use. The key comes from --key or
// AUTH_SIGNING_KEY so no database is needed.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue API tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			role, _ := cmd.Flags().GetString("role")
			tenant, _ := cmd.Flags().GetString("tenant")
			issuer, _ := cmd.Flags().GetString("issuer")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			key, _ := cmd.Flags().GetString("key")
			if key == "" {
				key = os.Getenv("AUTH_SIGNING_KEY")
			}

			token, err := auth.IssueToken(auth.TokenRequest{
				Subject:  subject,
				Role:     auth.Role(role),
				TenantID: tenant,
				Issuer:   issuer,
				TTL:      ttl,
			}, []byte(key), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().String("sub", "", "User id placed in the sub claim")
	issueCmd.Flags().String("role", string(auth.RolePatient), "admin, staff, doctor or patient")
	issueCmd.Flags().String("tenant", "", "Tenant id claim")
	issueCmd.Flags().String("issuer", "", "Issuer claim")
	issueCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	issueCmd.Flags().String("key", "", "HS256 signing key (defaults to AUTH_SIGNING_KEY)")
	cmd.AddCommand(issueCmd)

	return cmd
}
