package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/target/refresh-orchestrator/internal/bootstrap"
	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/migrate"
	"github.com/target/refresh-orchestrator/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

type passOptions struct {
	Timeout time.Duration
	JSON    bool
}

type runOptions struct {
	JobID   string
	RunID   string
	Timeout time.Duration
	JSON    bool
}

type paramsOptions struct {
	OrganizationID string
	UserID         string
	JSON           bool
}

type clearLocksOptions struct {
	Yes bool
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	fs.BoolVar(&opts.Status, "status", false, "List migrations and whether they are applied, without applying")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parsePassFlags(args []string) (passOptions, error) {
	fs := newFlagSet("run-pass")
	opts := passOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum time for the pass")
	fs.BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return passOptions{}, err
	}
	if opts.Timeout <= 0 {
		return passOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseRunFlags(name string, args []string, needRun bool) (runOptions, error) {
	fs := newFlagSet(name)
	opts := runOptions{}
	fs.StringVar(&opts.JobID, "job", "", "Refresh job ID")
	if needRun {
		fs.StringVar(&opts.RunID, "run", "", "Refresh job run ID (required)")
	}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum time for the command")
	fs.BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return runOptions{}, err
	}
	opts.JobID = strings.TrimSpace(opts.JobID)
	opts.RunID = strings.TrimSpace(opts.RunID)
	switch {
	case needRun && opts.RunID == "":
		return runOptions{}, errors.New("--run is required")
	case !needRun && opts.JobID == "":
		return runOptions{}, errors.New("--job is required")
	case opts.Timeout <= 0:
		return runOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseParamsFlags(args []string) (paramsOptions, error) {
	fs := newFlagSet("params")
	opts := paramsOptions{}
	fs.StringVar(&opts.OrganizationID, "org", "", "Organization ID (required)")
	fs.StringVar(&opts.UserID, "user", "", "Resolve for this user instead of organization defaults only")
	fs.BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return paramsOptions{}, err
	}
	opts.OrganizationID = strings.TrimSpace(opts.OrganizationID)
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.OrganizationID == "" {
		return paramsOptions{}, errors.New("--org is required")
	}
	return opts, nil
}

func parseClearLocksFlags(args []string) (clearLocksOptions, error) {
	fs := newFlagSet("clear-fire-locks")
	opts := clearLocksOptions{}
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return clearLocksOptions{}, err
	}
	return opts, nil
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	conns, err := connectInfra(&connectInfraOptions{Ctx: ctx, Logger: cmdCtx.Logger, Config: &cmdCtx.Config, WantDB: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conns.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		migrations, statusErr := migrate.Status(ctx, conns.DB)
		if statusErr != nil {
			return fmt.Errorf("migration status: %w", statusErr)
		}
		return printMigrations(cmdCtx.Out, migrations)
	}

	cmdCtx.Logger.Info("running database migrations")
	return bootstrap.RunMigrations(ctx, conns.DB, cmdCtx.Logger)
}

func runPass(cmdCtx *commandContext, args []string) error {
	opts, err := parsePassFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withServices(cmdCtx, func(services bootstrap.ServiceContainer) error {
		res, passErr := services.Orchestrator.RunPass(ctx, service.TriggerCLI)
		if res != nil {
			if printErr := printResult(cmdCtx.Out, opts.JSON, res, printPassResult); printErr != nil {
				return printErr
			}
		}
		return passErr
	})
}

func runInitiate(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunFlags("initiate", args, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withServices(cmdCtx, func(services bootstrap.ServiceContainer) error {
		res, initErr := services.Initiator.Initiate(ctx, service.InitiateRequest{RefreshJobID: opts.JobID})
		if res != nil {
			if printErr := printResult(cmdCtx.Out, opts.JSON, res, printInitiateResult); printErr != nil {
				return printErr
			}
		}
		return initErr
	})
}

func runFinish(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunFlags("finish", args, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withServices(cmdCtx, func(services bootstrap.ServiceContainer) error {
		run, getErr := services.Runs.GetByID(ctx, opts.RunID)
		if getErr != nil {
			return getErr
		}
		if opts.JobID != "" && run.RefreshJobID != opts.JobID {
			return fmt.Errorf("run %s belongs to refresh job %s, not %s", run.ID, run.RefreshJobID, opts.JobID)
		}
		res, finishErr := services.Finisher.Finish(ctx, run)
		if finishErr != nil {
			return finishErr
		}
		return printResult(cmdCtx.Out, opts.JSON, res, printFinishResult)
	})
}

func runParams(cmdCtx *commandContext, args []string) error {
	opts, err := parseParamsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withServices(cmdCtx, func(services bootstrap.ServiceContainer) error {
		resolved, resolveErr := services.Parameters.Resolve(ctx, opts.OrganizationID, opts.UserID)
		if resolveErr != nil {
			return resolveErr
		}
		return printResult(cmdCtx.Out, opts.JSON, resolved, printParameters)
	})
}

func runClearFireLocks(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearLocksFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		if confirmErr := confirm(cmdCtx.Out, cmdCtx.In, "delete every refresh fire lock"); confirmErr != nil {
			return confirmErr
		}
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	conns, err := connectInfra(&connectInfraOptions{Ctx: ctx, Logger: cmdCtx.Logger, Config: &cmdCtx.Config, WantRedis: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conns.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()
	if conns.Redis == nil {
		return errors.New("redis is not configured")
	}

	deleted, err := data.NewRedisFireLocker(conns.Redis).Clear(ctx)
	if err != nil {
		return fmt.Errorf("clear fire locks: %w", err)
	}
	return writef(cmdCtx.Out, "Deleted %d fire lock(s)\n", deleted)
}

// confirm asks for a y/yes answer on in and fails otherwise.
func confirm(out io.Writer, in io.Reader, action string) error {
	if err := writef(out, "About to %s. Continue? [y/N]: ", action); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
