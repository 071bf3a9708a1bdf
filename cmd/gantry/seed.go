package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gantry-app/gantry/internal/account"
	"github.com/gantry-app/gantry/internal/auth"
	"github.com/gantry-app/gantry/internal/config"
	"github.com/gantry-app/gantry/internal/mail"
	"github.com/gantry-app/gantry/internal/session"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed system roles and a demo account",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type roleSeed struct {
	name        string
	description string
	scope       string
}

var roleSeeds = []roleSeed{
	{"user", "Default role for every registered account", "system"},
	{"admin", "Platform administrator", "system"},
	{"owner", "Full control of a project, including deletion", "project"},
	{"manager", "Manage project structure and membership", "project"},
	{"member", "Create and update tasks", "project"},
	{"viewer", "Read-only project access", "project"},
}

const demoEmail = "demo@gantry.local"
const demoPassword = "DemoPass123!"

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Roles first; everything else depends on them. ON CONFLICT keeps reruns
	// harmless.
	for _, r := range roleSeeds {
		_, err := pool.Exec(ctx, `
			INSERT INTO role (name, description, scope, is_system)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (name, scope) DO NOTHING`,
			r.name, r.description, r.scope,
		)
		if err != nil {
			return fmt.Errorf("seeding role %q: %w", r.name, err)
		}
	}
	slog.Info("roles seeded", "count", len(roleSeeds))

	accountStore := account.NewStore(pool)
	sessionStore := session.NewStore(pool)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	logger := slog.Default()
	manager := session.NewManager(accountStore, sessionStore, issuer, mail.NewService(cfg.Mail, logger), session.Config{
		RefreshTokenTTL:      cfg.Auth.RefreshTokenTTL,
		VerificationTokenTTL: cfg.Auth.VerificationTokenTTL,
		ResetTokenTTL:        cfg.Auth.ResetTokenTTL,
	})

	if _, err := accountStore.GetByEmail(ctx, demoEmail); err == nil {
		slog.Info("demo account already exists, skipping seed")
		return nil
	}

	creds, err := manager.Register(ctx, session.RegisterParams{
		Email:    demoEmail,
		Password: demoPassword,
		FullName: "Demo Account",
	})
	if err != nil {
		return fmt.Errorf("creating demo account: %w", err)
	}

	// A small demo graph inside the personal organization: one project with a
	// task and an assignment, so the resource endpoints have something to
	// serve out of the box.
	var orgID string
	err = pool.QueryRow(ctx, `
		SELECT organization_id FROM organization_member
		WHERE account_id = $1 AND role = 'owner'
		LIMIT 1`,
		creds.Account.ID,
	).Scan(&orgID)
	if err != nil {
		return fmt.Errorf("looking up demo organization: %w", err)
	}

	var projectID string
	err = pool.QueryRow(ctx, `
		INSERT INTO project (organization_id, owner_id, name, description, status)
		VALUES ($1, $2, 'Getting Started', 'A sample project created by gantry seed.', 'active')
		RETURNING id`,
		orgID, creds.Account.ID,
	).Scan(&projectID)
	if err != nil {
		return fmt.Errorf("creating demo project: %w", err)
	}

	var taskID string
	err = pool.QueryRow(ctx, `
		INSERT INTO task (project_id, name, status)
		VALUES ($1, 'Explore the API', 'todo')
		RETURNING id`,
		projectID,
	).Scan(&taskID)
	if err != nil {
		return fmt.Errorf("creating demo task: %w", err)
	}

	var assignmentID string
	err = pool.QueryRow(ctx, `
		INSERT INTO assignment (task_id, units)
		VALUES ($1, 1.0)
		RETURNING id`,
		taskID,
	).Scan(&assignmentID)
	if err != nil {
		return fmt.Errorf("creating demo assignment: %w", err)
	}

	slog.Info("demo data seeded", "account_id", creds.Account.ID, "project_id", projectID)
	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Account:    %s\n", demoEmail)
	fmt.Printf("Password:   %s\n", demoPassword)
	fmt.Printf("Project:    %s\n", projectID)
	fmt.Printf("Task:       %s\n", taskID)
	fmt.Printf("Assignment: %s\n", assignmentID)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST -H 'Content-Type: application/json' \\\n")
	fmt.Printf("    -d '{\"email\":\"%s\",\"password\":\"%s\"}' \\\n", demoEmail, demoPassword)
	fmt.Printf("    http://localhost:8080/api/v1/auth/login\n")

	return nil
}
