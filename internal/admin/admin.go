// Package admin implements the rmctl maintenance commands: schema
// migration, one-time breakglass account creation and a status report.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/server/services"
)

var ErrUnknownCommand = errors.New("unknown command")

// Migrator applies the schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Breakglass is the part of the breakglass guard rmctl uses.
type Breakglass interface {
	IsSet(ctx context.Context) (bool, error)
	Create(ctx context.Context, password string) error
}

// Health reports table presence.
type Health interface {
	CheckDatabase(ctx context.Context) services.HealthReport
}

// Commands runs one rmctl command against its dependencies.
type Commands struct {
	migrator   Migrator
	breakglass Breakglass
	health     Health
	out        io.Writer
}

// NewCommands writes command output to out.
func NewCommands(m Migrator, b Breakglass, h Health, out io.Writer) *Commands {
	return &Commands{migrator: m, breakglass: b, health: h, out: out}
}

const Usage = `usage: rmctl <command> [flags]

commands:
  migrate      apply database migrations
  breakglass   create the one-time breakglass account
  status       report table health and breakglass state

flags:
  -d string    PostgreSQL DSN
  -c string    path to JSON config file
`

// Run executes command, one of migrate, breakglass or status.
func (c *Commands) Run(ctx context.Context, command string) error {
	switch command {
	case "migrate":
		return c.migrate(ctx)
	case "breakglass":
		return c.createBreakglass(ctx)
	case "status":
		return c.status(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func (c *Commands) migrate(ctx context.Context) error {
	if err := c.migrator.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "migrations applied")
	return nil
}

func (c *Commands) createBreakglass(ctx context.Context) error {
	set, err := c.breakglass.IsSet(ctx)
	if err != nil {
		return err
	}
	if set {
		return common.ErrorBreakglassAlreadySet
	}

	password, err := GetNewPassword(c.out)
	if err != nil {
		return err
	}
	if err := c.breakglass.Create(ctx, password); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "breakglass account created")
	return nil
}

func (c *Commands) status(ctx context.Context) error {
	report := c.health.CheckDatabase(ctx)

	names := make([]string, 0, len(report.Tables))
	for name := range report.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "missing"
		if report.Tables[name] {
			state = "ok"
		}
		fmt.Fprintf(c.out, "table %-14s %s\n", name, state)
	}
	if !report.Healthy {
		return fmt.Errorf("database unhealthy: %s", report.Error)
	}

	set, err := c.breakglass.IsSet(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "breakglass set: %t\n", set)
	return nil
}
