package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	cfnats "github.com/satorinet/neuronfeed/internal/adapter/nats"
	"github.com/satorinet/neuronfeed/internal/adapter/postgres"
	"github.com/satorinet/neuronfeed/internal/config"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/service"
)

const adminTimeout = 30 * time.Second

// runAdmin dispatches admin subcommands (hash-key, migrate, end-working).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-key":
		return runAdminHashKey(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	case "end-working":
		return runAdminEndWorking(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: neuronfeed admin <command> [options]

Commands:
  hash-key      Print the bcrypt hash of a control key (for control.key_hash)
  migrate       Manage catalog migrations: up, down, version
  end-working   End every open status stream
  help          Show this help message

Examples:
  neuronfeed admin hash-key
  neuronfeed admin migrate up
  neuronfeed admin migrate down --steps 2
  neuronfeed admin end-working --config /etc/neuronfeed.yaml
`)
}

// adminFlags registers the flags shared by every subcommand.
func adminFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", config.DefaultConfigFile, "path to YAML config file")
	return fs, path
}

func runAdminHashKey(args []string) error {
	fs, cfgPath := adminFlags("hash-key")
	key := fs.String("key", "", "control key (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	cost := config.Defaults().Control.BcryptCost
	if cfg, err := config.LoadFrom(*cfgPath); err == nil {
		cost = cfg.Control.BcryptCost
	}

	plain := *key
	if plain == "" {
		var err error
		plain, err = promptSecret("Control key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if plain != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if plain == "" {
		return fmt.Errorf("control key must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

func runAdminMigrate(args []string) error {
	fs, cfgPath := adminFlags("migrate")
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	direction := "up"
	if fs.NArg() > 0 {
		direction = fs.Arg(0)
	}
	if direction != "up" && direction != "down" && direction != "version" {
		return fmt.Errorf("unknown migrate direction %q (want up, down or version)", direction)
	}
	if direction == "down" && *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}

	cfg, err := config.LoadFrom(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	switch direction {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "catalog schema at version %d\n", version)
	return nil
}

func runAdminEndWorking(args []string) error {
	fs, cfgPath := adminFlags("end-working")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	queue, err := cfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	working := service.NewQueueProducer("working", messagequeue.SubjectWorking, queue, service.DecodeStatus)
	if err := service.NewStatusStreamer(working, cfg.Stream.StatusPollInterval, nil).End(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "status streams ended")
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
