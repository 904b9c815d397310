// Command sentinel-admin manages the contract sentinel database: schema
// migrations and tenant API keys.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	mw "github.com/kiranshivaraju/contractsentinel/internal/api/middleware"
	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/kiranshivaraju/contractsentinel/internal/store"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// keyPrefix marks raw keys issued by this tool.
const keyPrefix = "cs_"

// Globals is shared by every subcommand.
type Globals struct {
	Out io.Writer
}

// CLI is the sentinel-admin command tree.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Migrate   MigrateCmd   `cmd:"" help:"Apply or roll back database migrations"`
	CreateKey CreateKeyCmd `cmd:"" name:"create-key" help:"Issue an API key for a tenant"`
}

// AfterApply configures logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

type MigrateCmd struct {
	Up   MigrateUpCmd   `cmd:"" default:"1" help:"Apply all pending migrations"`
	Down MigrateDownCmd `cmd:"" help:"Roll back migrations"`
}

type MigrateUpCmd struct{}

func (c *MigrateUpCmd) Run(g *Globals) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Driver != "postgres" {
		fmt.Fprintf(g.Out, "driver %s keeps its schema in place, nothing to migrate\n", cfg.Driver)
		return nil
	}
	if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
		return err
	}
	fmt.Fprintln(g.Out, "migrations applied")
	return nil
}

type MigrateDownCmd struct {
	Steps int `help:"Number of migrations to roll back" default:"1"`
}

func (c *MigrateDownCmd) Run(g *Globals) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Driver != "postgres" {
		return fmt.Errorf("rollback is only supported for postgres, got %s", cfg.Driver)
	}
	if err := store.RollbackMigrations(cfg.URL, cfg.MigrationsDir, c.Steps); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "rolled back %d migration(s)\n", c.Steps)
	return nil
}

type CreateKeyCmd struct {
	Tenant string `required:"" help:"Tenant the key is bound to"`
	Name   string `required:"" help:"Human readable label for the key"`
}

// Run stores the bcrypt hash of a fresh key and prints the raw key. The raw
// key cannot be recovered afterwards.
func (c *CreateKeyCmd) Run(g *Globals) error {
	tenant := strings.TrimSpace(c.Tenant)
	if tenant == "" {
		return fmt.Errorf("tenant must not be blank")
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rawKey, key, err := newAPIKey(tenant, c.Name)
	if err != nil {
		return err
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	slog.Info("api key created", "tenant_id", tenant, "key_prefix", key.KeyPrefix)
	fmt.Fprintln(g.Out, rawKey)
	return nil
}

func newAPIKey(tenant, name string) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	rawKey := keyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return rawKey, &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenant,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sentinel-admin"),
		kong.Description("Administer the contract sentinel database."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&Globals{Out: os.Stdout}))
}
