package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/agentdeck/agentdeck/internal/adapter/postgres"
	"github.com/agentdeck/agentdeck/internal/config"
)

// runAdmin dispatches admin subcommands (set-token, list-projects, migrate,
// migration-version).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "set-token":
		return runAdminSetToken(args[1:])
	case "list-projects":
		return runAdminListProjects(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	case "migration-version":
		return runAdminMigrationVersion(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentdeck admin <command> [options]

Commands:
  set-token          Store remote API credentials in the config file
  list-projects      List all projects with their run status
  migrate            Apply pending database migrations
  migration-version  Print the current migration version
  help               Show this help message

Examples:
  agentdeck admin set-token --org my-org
  agentdeck admin list-projects
  agentdeck admin migrate
`)
}

// runAdminSetToken prompts for the remote API token without echoing it and
// writes org and token into the YAML config file, preserving everything else
// the file already holds.
func runAdminSetToken(args []string) error {
	fs := flag.NewFlagSet("set-token", flag.ContinueOnError)
	org := fs.String("org", "", "organization id (required)")
	file := fs.String("config", config.DefaultConfigFile, "config file to update")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *org == "" {
		return fmt.Errorf("--org is required")
	}

	token, err := promptSecret("API token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(*file); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", *file, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", *file, err)
	}

	remoteSection, _ := doc["remote"].(map[string]any)
	if remoteSection == nil {
		remoteSection = map[string]any{}
	}
	remoteSection["org_id"] = *org
	remoteSection["api_token"] = token
	doc["remote"] = remoteSection

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(*file, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *file, err)
	}

	fmt.Fprintf(os.Stderr, "Credentials stored in %s for organization %s\n", *file, *org)
	return nil
}

func runAdminListProjects(args []string) error {
	fs := flag.NewFlagSet("list-projects", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("list-projects requires store.backend=postgres, got %q", cfg.Store.Backend)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	projects, err := postgres.NewStore(pool).ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tREPO\tRUN_STATUS\tRUN_ID\tUPDATED")
	for i := range projects {
		p := &projects[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.ID, p.Name, p.RepoURL, p.AgentRun.Status, p.AgentRun.RunID,
			p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Migrations applied.")
	return nil
}

func runAdminMigrationVersion(args []string) error {
	fs := flag.NewFlagSet("migration-version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Printf("%d\n", version)
	return nil
}

// promptSecret reads a line from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
