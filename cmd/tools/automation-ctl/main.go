// cmd/tools/automation-ctl/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"automation-engine/internal/automation"
	"automation-engine/internal/common/config"
	"automation-engine/internal/common/database"
	"automation-engine/internal/common/events"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/models"
	"automation-engine/internal/notifier"
	"automation-engine/internal/repository"
)

func main() {
	settingsCmd := flag.NewFlagSet("settings", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	triggerCmd := flag.NewFlagSet("trigger", flag.ExitOnError)
	logsCmd := flag.NewFlagSet("logs", flag.ExitOnError)
	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	tickCmd := flag.NewFlagSet("tick", flag.ExitOnError)

	// Update command flags
	updateType := updateCmd.String("type", "", "Workflow type (e.g., reminder-24h)")
	enabled := updateCmd.String("enabled", "", "Enable or disable the workflow (true|false)")
	offset := updateCmd.Int("offset", 0, "Timing offset in minutes (negative = before the reference time)")
	bizHours := updateCmd.String("business-hours", "", "Restrict sends to business hours (true|false)")

	// Trigger command flags
	triggerType := triggerCmd.String("type", "", "Workflow type")
	subjectID := triggerCmd.String("subject", "", "Subject ID (appointment, customer or request)")

	// Logs command flags
	logsType := logsCmd.String("type", "", "Filter by workflow type")
	logsSubject := logsCmd.String("subject", "", "Filter by subject ID")
	logsStatus := logsCmd.String("status", "", "Filter by status (sent|failed)")
	logsSince := logsCmd.Duration("since", 0, "Only records newer than this (e.g., 24h)")
	logsLimit := logsCmd.Int("limit", automation.DefaultLogLimit, "Maximum records to return")
	logsOffset := logsCmd.Int("offset", 0, "Records to skip")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		app := connect(ctx)
		defer app.close()
		if err := repository.Migrate(ctx, app.pg.DB); err != nil {
			fail("Migration failed", err)
		}
		fmt.Println("Schema is up to date.")

	case "seed":
		seedCmd.Parse(os.Args[2:])
		app := connect(ctx)
		defer app.close()
		if err := app.engine.SeedDefaults(ctx); err != nil {
			fail("Seeding failed", err)
		}
		fmt.Println("Default settings seeded.")

	case "settings":
		settingsCmd.Parse(os.Args[2:])
		app := connect(ctx)
		defer app.close()
		settings, err := app.engine.GetSettings(ctx)
		if err != nil {
			fail("Error loading settings", err)
		}
		printJSON(settings)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *updateType == "" {
			fmt.Println("Error: type is required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		patch := models.SettingsPatch{}
		updateCmd.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "enabled":
				patch.Enabled = parseBool("enabled", *enabled)
			case "offset":
				patch.TimingOffsetMinutes = offset
			case "business-hours":
				patch.BusinessHoursOnly = parseBool("business-hours", *bizHours)
			}
		})

		app := connect(ctx)
		defer app.close()
		setting, err := app.engine.UpdateSettings(ctx, models.WorkflowType(*updateType), patch)
		if err != nil {
			fail("Error updating settings", err)
		}
		printJSON(setting)

	case "trigger":
		triggerCmd.Parse(os.Args[2:])
		if *triggerType == "" || *subjectID == "" {
			fmt.Println("Error: type and subject are required for trigger.")
			triggerCmd.Usage()
			os.Exit(1)
		}
		app := connect(ctx)
		defer app.close()
		result, err := app.engine.TriggerAutomation(ctx, models.WorkflowType(*triggerType), *subjectID)
		if err != nil {
			fail("Trigger failed", err)
		}
		printJSON(result)
		if !result.Success {
			os.Exit(1)
		}

	case "logs":
		logsCmd.Parse(os.Args[2:])
		filter := models.LogFilter{
			WorkflowType: models.WorkflowType(*logsType),
			SubjectID:    *logsSubject,
			Status:       models.DispatchStatus(*logsStatus),
			Limit:        *logsLimit,
			Offset:       *logsOffset,
		}
		if *logsSince > 0 {
			filter.Since = time.Now().Add(-*logsSince)
		}
		app := connect(ctx)
		defer app.close()
		records, err := app.engine.GetLogs(ctx, filter)
		if err != nil {
			fail("Error loading logs", err)
		}
		printJSON(records)

	case "tick":
		tickCmd.Parse(os.Args[2:])
		app := connect(ctx)
		defer app.close()
		report, err := app.engine.RunOnce(ctx)
		if err != nil {
			fail("Tick failed", err)
		}
		printJSON(report)

	case "help":
		fallthrough
	default:
		help()
	}
}

type app struct {
	pg     *database.PostgresClient
	engine *automation.Engine
}

func (a *app) close() {
	a.pg.Close()
}

func connect(ctx context.Context) *app {
	cfg, err := config.Load()
	if err != nil {
		fail("Config load failed", err)
	}

	log := logger.NewStructured("warn", "console")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fail("Postgres init failed", err)
	}
	if err := pg.Ping(ctx); err != nil {
		fail("Postgres unavailable", err)
	}

	n, err := notifier.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		fail("Notifier init failed", err)
	}

	engine, err := automation.NewEngine(automation.NewConfig(cfg), automation.Dependencies{
		Settings: repository.NewSettingsRepository(pg.DB),
		Subjects: repository.NewSubjectRepository(pg.DB),
		Ledger:   repository.NewLedgerRepository(pg.DB),
		Notifier: n,
		Sink:     events.NewLogSink(log),
		Logger:   log,
	})
	if err != nil {
		fail("Engine init failed", err)
	}

	return &app{pg: pg, engine: engine}
}

func parseBool(name, raw string) *bool {
	switch raw {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	fmt.Printf("Error: -%s must be true or false, got %q\n", name, raw)
	os.Exit(1)
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("Error encoding output", err)
	}
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func help() {
	fmt.Println(`Usage: automation-ctl <command> [flags]

Commands:
  migrate    Create the automation tables and indexes
  seed       Insert default settings for every workflow (existing rows are kept)
  settings   Print the current settings
  update     Patch one workflow's settings
             -type <workflow> [-enabled true|false] [-offset <minutes>] [-business-hours true|false]
  trigger    Dispatch one workflow for one subject now
             -type <workflow> -subject <id>
  logs       List dispatch records, newest first
             [-type <workflow>] [-subject <id>] [-status sent|failed] [-since 24h] [-limit 50] [-offset 0]
  tick       Run a single scheduler tick and print its report
  help       Show this message`)
}
