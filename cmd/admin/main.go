package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"grievance/backend/internal/auth"
	"grievance/backend/internal/complaint"
	"grievance/backend/internal/config"
	"grievance/backend/internal/models"
	"grievance/backend/internal/storage"
	"grievance/backend/internal/workflow"
)

// opener connects the CLI to a store and returns a func that releases it.
// Tests swap it for an in-memory one.
type opener func(cfg *config.Config) (storage.Storage, func() error, error)

func openPostgres(cfg *config.Config) (storage.Storage, func() error, error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("admin CLI needs the postgres driver, got %q", cfg.Database.Driver)
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return storage.NewStorageService(db, nil), sqlDB.Close, nil
}

type app struct {
	open       opener
	configPath string
	cfg        *config.Config
	complaints *complaint.Service
	closers    []func() error
	in         io.Reader
	out        io.Writer
}

func newApp(open opener, in io.Reader, out io.Writer) *app {
	return &app{open: open, in: in, out: out}
}

// rootCmd wires every subcommand. Connections opened by a command are
// released after it succeeds; callers still call close for the error path.
func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Operator tools for the grievance backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	cmd.SetOut(a.out)
	cmd.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("GRIEVANCE_CONFIG"), "path to a YAML config file")

	cmd.AddCommand(a.statusCmd())
	cmd.AddCommand(a.showCmd())
	cmd.AddCommand(a.listCmd())
	cmd.AddCommand(a.deleteCmd())
	cmd.AddCommand(a.statsCmd())
	cmd.AddCommand(a.tokenCmd())

	return cmd
}

// close releases every connection opened so far. It is safe to call twice.
func (a *app) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// connect builds the complaint service. Public cache entries are
// invalidated when Redis is configured.
func (a *app) connect(cmd *cobra.Command, args []string) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	store, closeStore, err := a.open(a.cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	log := config.NewLogger(a.cfg.Logging)
	log.SetOutput(io.Discard)
	opts := []complaint.Option{complaint.WithLogger(log)}
	if a.cfg.Redis.Addr != "" && a.cfg.Cache.PublicTTL > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr, Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB})
		a.closers = append(a.closers, rdb.Close)
		opts = append(opts, complaint.WithCache(storage.NewRedisCache(rdb, a.cfg.Cache.PublicTTL)))
	}
	a.complaints = complaint.NewService(store, opts...)
	return nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tracking-id|id> <status>",
		Short: "Move a complaint to a new status",
		Long: fmt.Sprintf(`Apply a workflow transition.

Valid statuses: %s

Examples:
  admin status SEC-2026-A3KP7 "Under Review"
  admin status SEC-2026-A3KP7 resolved`, statusList()),
		Args:    cobra.ExactArgs(2),
		PreRunE: a.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.complaints.UpdateStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s is now %s\n", view.TrackingID, statusColor(view.Status).Sprint(view.Status))
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <tracking-id>",
		Short:   "Show a complaint with its identity record",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.complaints.GetJoined(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s  %s\n", color.New(color.Bold).Sprint(view.TrackingID), statusColor(view.Status).Sprint(view.Status))
			fmt.Fprintf(a.out, "  ID:       %s (v%d)\n", view.ID, view.Version)
			fmt.Fprintf(a.out, "  Title:    %s\n", view.Title)
			fmt.Fprintf(a.out, "  Category: %s\n", view.Category)
			fmt.Fprintf(a.out, "  Created:  %s\n", view.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(a.out, "  Updated:  %s\n", view.UpdatedAt.Format(time.RFC3339))
			fmt.Fprintf(a.out, "  Next:     %s\n", nextStatuses(view.Status))
			fmt.Fprintf(a.out, "  Name:     %s\n", orDash(view.Name))
			fmt.Fprintf(a.out, "  Email:    %s\n", orDash(view.Email))
			fmt.Fprintf(a.out, "  Phone:    %s\n", orDash(view.Phone))
			fmt.Fprintf(a.out, "\n%s\n", view.Description)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List complaints, newest first",
		Args:    cobra.NoArgs,
		PreRunE: a.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := a.complaints.ListAdmin(cmd.Context())
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(a.out, "No complaints.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRACKING ID\tSTATUS\tCATEGORY\tCREATED\tTITLE")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					v.TrackingID, v.Status, v.Category, v.CreatedAt.Format("2006-01-02"), v.Title)
			}
			return w.Flush()
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <tracking-id|id>",
		Short:   "Delete a complaint, its identity record and its thread",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !a.confirm(fmt.Sprintf("Delete %s permanently?", args[0])) {
				fmt.Fprintln(a.out, "Aborted.")
				return nil
			}
			if err := a.complaints.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s deleted\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Count complaints per status",
		Args:    cobra.NoArgs,
		PreRunE: a.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.complaints.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(a.out, stats)
			return nil
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id> <role>",
		Short: "Issue a signed staff token",
		Long: `Sign a bearer token for the HTTP API.

Roles: student, committee, admin, super_admin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if !a.cfg.Auth.Enabled {
				return errors.New("auth is disabled; tokens are not checked")
			}
			authCfg := a.cfg.Auth
			if ttl > 0 {
				authCfg.TokenTTL = ttl
			}
			token, err := auth.IssueToken(authCfg, args[0], auth.Role(args[1]), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}

func (a *app) confirm(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(a.in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printStats(out io.Writer, stats models.Stats) {
	fmt.Fprintf(out, "Total: %d\n", stats.Total)
	rows := []struct {
		status workflow.Status
		count  int
	}{
		{workflow.StatusPending, stats.Pending},
		{workflow.StatusUnderReview, stats.UnderReview},
		{workflow.StatusInvestigation, stats.Investigation},
		{workflow.StatusResolved, stats.Resolved},
		{workflow.StatusRejected, stats.Rejected},
	}
	for _, row := range rows {
		fmt.Fprintf(out, "  %-14s %d\n", statusColor(row.status).Sprint(row.status), row.count)
	}
}

func statusColor(s workflow.Status) *color.Color {
	switch s {
	case workflow.StatusResolved:
		return color.New(color.FgGreen)
	case workflow.StatusRejected:
		return color.New(color.FgRed)
	case workflow.StatusPending:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func statusList() string {
	names := make([]string, 0, len(workflow.Statuses()))
	for _, s := range workflow.Statuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func nextStatuses(s workflow.Status) string {
	if workflow.IsTerminal(s) {
		return "none (final)"
	}
	names := make([]string, 0, len(workflow.AllowedFrom(s)))
	for _, next := range workflow.AllowedFrom(s) {
		names = append(names, string(next))
	}
	return strings.Join(names, ", ")
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	a := newApp(openPostgres, os.Stdin, os.Stdout)
	err := a.rootCmd().ExecuteContext(context.Background())
	if closeErr := a.close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("warning: %v", closeErr))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
