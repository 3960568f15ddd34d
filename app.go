package main

import (
	"context"
	"flag"
	"io"
	"os"

	"daily-report-assistant/db"
	"daily-report-assistant/report"
	"daily-report-assistant/utils"
)

// options are the parsed command line flags
type options struct {
	configPath  string
	showVersion bool

	add      string
	category string
	priority string
	status   string
	tags     string
	date     string
	list     bool
	deleteID int64

	deleteReport int64
	clearHistory bool

	report  string
	useAI   bool
	save    bool
	send    bool
	enhance string
	export  string
	format  string
	custom  string
	from    string

	search     string
	stats      bool
	testAI     bool
	testFeishu bool
	backup     string
	restore    string
	vacuum     bool
	daemon     bool
}

// app wires the configuration store, the archive and the report generator
type app struct {
	store     *utils.ConfigStore
	database  *db.DB
	dbPath    string
	generator *report.Generator
	logger    *utils.Logger
	clock     utils.Clock
	out       io.Writer
}

func newApp(configPath string, logger *utils.Logger) *app {
	store := utils.NewConfigStore(configPath, logger)
	a := &app{
		store:  store,
		logger: logger,
		clock:  utils.SystemClock{},
		out:    os.Stdout,
	}

	genOpts := report.Options{Clock: a.clock, Logger: logger}
	if archive := store.ArchiveConfig(); archive.Enabled {
		path := utils.ExpandPath(archive.DBPath)
		database, err := db.New(path)
		if err != nil {
			logger.Warn("Report archive disabled: %v", err)
		} else {
			a.database, a.dbPath = database, path
			genOpts.Archive = database
			logger.Info("Database initialized: %s", archive.DBPath)
		}
	}

	a.generator = report.NewGenerator(store, genOpts)
	store.Subscribe(func(*utils.Document) { a.generator.Refresh() })
	return a
}

// Close releases the archive
func (a *app) Close() {
	if a.database != nil {
		a.database.Close()
		a.database = nil
	}
}

// run executes every command selected on the command line, in a fixed order
func (a *app) run(ctx context.Context, opts options) error {
	ran := false
	steps := []struct {
		enabled bool
		fn      func() error
	}{
		{opts.restore != "", func() error { return a.restoreConfig(opts.restore) }},
		{opts.backup != "", func() error { return a.backupConfig(opts.backup) }},
		{opts.deleteID != 0, func() error { return a.deleteEntry(opts.deleteID) }},
		{opts.deleteReport != 0, func() error { return a.deleteReport(opts.deleteReport) }},
		{opts.clearHistory, func() error { return a.clearHistory() }},
		{opts.add != "", func() error { return a.addEntry(opts) }},
		{opts.list, func() error { return a.listEntries(opts.date) }},
		{opts.report != "" && !opts.testFeishu, func() error { return a.generateReport(ctx, opts) }},
		{opts.custom != "", func() error { return a.customReport(ctx, opts) }},
		{opts.report == "" && opts.custom == "" && opts.export != "", func() error { return a.exportWorkLogs(opts) }},
		{opts.search != "", func() error { return a.searchReports(opts.search) }},
		{opts.stats, func() error { return a.showStats() }},
		{opts.vacuum, func() error { return a.vacuumArchive() }},
		{opts.testAI, func() error { return a.testAI(ctx) }},
		{opts.testFeishu, func() error { return a.testFeishu(ctx, opts.report) }},
		{opts.daemon, func() error { return a.runDaemon(ctx) }},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		ran = true
		if err := step.fn(); err != nil {
			return err
		}
	}

	if !ran {
		flag.Usage()
	}
	return nil
}
