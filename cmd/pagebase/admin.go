package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/pagebase/pagebase/internal/adapter/postgres"
	"github.com/pagebase/pagebase/internal/config"
	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/directory"
	"github.com/pagebase/pagebase/internal/service"
)

const adminUsage = `Usage: pagebase admin <command> [flags]

Commands:
  create-tenant    Provision a new tenant
  suspend-tenant   Suspend a tenant account
  activate-tenant  Reactivate a suspended tenant
  list-tenants     List all tenants
`

// runAdmin dispatches the admin subcommands. They talk to the tenant
// directory straight over the database and do not need the server or
// the provisioning secret.
func runAdmin(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, adminUsage)
		return fmt.Errorf("missing command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Keep stdout clean for command output.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	store := postgres.NewStore(pool)
	log := slog.Default()
	svc := service.NewTenantService(store, nil, log)

	switch args[0] {
	case "create-tenant":
		return adminCreateTenant(ctx, svc, args[1:])
	case "suspend-tenant":
		return adminSetStatus(ctx, store, svc.Suspend, "suspend-tenant", args[1:])
	case "activate-tenant":
		return adminSetStatus(ctx, store, svc.Activate, "activate-tenant", args[1:])
	case "list-tenants":
		return adminListTenants(ctx, svc, args[1:])
	default:
		fmt.Fprint(os.Stderr, adminUsage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func adminCreateTenant(ctx context.Context, svc *service.TenantService, args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	name := fs.String("name", "", "tenant display name (required)")
	subdomain := fs.String("subdomain", "", "tenant subdomain (required)")
	owner := fs.String("owner", "", "owner email (required)")
	plan := fs.String("plan", "free", "plan: free, starter, pro, enterprise")
	domain := fs.String("domain", "", "optional custom domain")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := svc.Provision(ctx, tenant.CreateRequest{
		Name:         *name,
		Subdomain:    *subdomain,
		CustomDomain: *domain,
		OwnerEmail:   *owner,
		Plan:         tenant.Plan(*plan),
	})
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("Tenant %s created.\n\n", res.Tenant.Subdomain)
		fmt.Printf("  ID:         %s\n", res.Tenant.ID)
		fmt.Printf("  API key:    %s\n", res.Tenant.APIKey)
		fmt.Printf("  API secret: %s\n", res.Secret)
		fmt.Println("\nStore the secret now; it is not retrievable later.")
		return nil
	}
	// Piped output: one machine-readable line.
	fmt.Printf("%s\t%s\t%s\n", res.Tenant.ID, res.Tenant.APIKey, res.Secret)
	return nil
}

func adminSetStatus(ctx context.Context, dir directory.Directory, apply func(context.Context, string) error, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	id := fs.String("id", "", "tenant id (required)")
	yes := fs.Bool("yes", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	t, err := dir.FindByID(ctx, *id)
	if err != nil {
		return fmt.Errorf("find tenant: %w", err)
	}

	if !*yes && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("%s %q (%s)? [y/N] ", cmd, t.Name, t.Subdomain)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			return fmt.Errorf("aborted")
		}
	}

	return apply(ctx, *id)
}

func adminListTenants(ctx context.Context, svc *service.TenantService, args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ts, err := svc.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBDOMAIN\tPLAN\tSTATUS\tLIMIT/H\tOWNER")
	for i := range ts {
		t := &ts[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.Subdomain, t.Plan, t.Status, t.RateLimit(), t.OwnerEmail)
	}
	return w.Flush()
}
