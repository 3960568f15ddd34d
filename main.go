package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"daily-report-assistant/utils"
)

var (
	version = "1.0.0"
)

func main() {
	// Parse command line flags
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")

	flag.StringVar(&opts.add, "add", "", "Add a work log entry with this content")
	flag.StringVar(&opts.category, "category", "", "Category of the new entry (工作/学习/会议/项目/其他)")
	flag.StringVar(&opts.priority, "priority", "", "Priority of the new entry (高/中/低)")
	flag.StringVar(&opts.status, "status", "", "Status of the new entry (未开始/进行中/已完成/暂停/取消)")
	flag.StringVar(&opts.tags, "tags", "", "Comma separated tags of the new entry")
	flag.StringVar(&opts.date, "date", "", "Date (YYYY-MM-DD) for -add, -list and -report; defaults to today")
	flag.BoolVar(&opts.list, "list", false, "List work log entries for -date, or all entries")
	flag.Int64Var(&opts.deleteID, "delete", 0, "Delete the work log entry with this ID")
	flag.Int64Var(&opts.deleteReport, "delete-report", 0, "Delete the saved report with this ID and its archived copy")
	flag.BoolVar(&opts.clearHistory, "clear-history", false, "Delete every saved report and their archived copies")

	flag.StringVar(&opts.report, "report", "", "Generate a report: daily, weekly or monthly")
	flag.BoolVar(&opts.useAI, "ai", false, "Use the configured language model for -report")
	flag.BoolVar(&opts.save, "save", false, "Save the generated report to history")
	flag.BoolVar(&opts.send, "send", false, "Send the generated report to the Feishu chat")
	flag.StringVar(&opts.enhance, "enhance", "", "Rewrite the generated report: polish, expand, summarize or format")
	flag.StringVar(&opts.export, "export", "", "Export the report (or the work log without -report) to this file, or \"auto\" for the default export directory")
	flag.StringVar(&opts.format, "format", "", "Export format: json, markdown, yaml or txt")
	flag.StringVar(&opts.custom, "custom", "", "Ask the language model for a custom report with this request")
	flag.StringVar(&opts.from, "from", "", "Start date (YYYY-MM-DD) for -custom; -date is the end date")

	flag.StringVar(&opts.search, "search", "", "Search archived reports")
	flag.BoolVar(&opts.stats, "stats", false, "Show report statistics")
	flag.BoolVar(&opts.testAI, "test-ai", false, "Test the language model connection")
	flag.BoolVar(&opts.testFeishu, "test-feishu", false, "Test the Feishu connection; with -report, also look up the report rule and send a test card")
	flag.StringVar(&opts.backup, "backup", "", "Write a copy of the configuration to this file")
	flag.StringVar(&opts.restore, "restore", "", "Replace the configuration with this backup")
	flag.BoolVar(&opts.vacuum, "vacuum", false, "Compact the report archive")
	flag.BoolVar(&opts.daemon, "daemon", false, "Run reminders and automatic submission until interrupted")
	flag.Parse()

	if opts.showVersion {
		fmt.Printf("Daily Report Assistant v%s\n", version)
		os.Exit(0)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.GetLogPath())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.SetEcho(opts.daemon)

	logger.Info("Starting Daily Report Assistant v%s", version)
	checkEnvFile(logger)

	configPath := opts.configPath
	if configPath == "" {
		configPath = utils.GetConfigPath()
	}
	configPath = utils.ExpandPath(configPath)
	logger.Info("Using config file: %s", configPath)

	a := newApp(configPath, logger)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, opts); err != nil {
		logger.Error("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		logger.Close()
		os.Exit(1)
	}
	logger.Info("Application stopped")
}

// checkEnvFile only reports whether a .env file is present
func checkEnvFile(logger *utils.Logger) {
	if utils.FileExists(".env") {
		logger.Info("Found .env file; credentials are read from the configuration file")
		return
	}
	logger.Debug("No .env file found")
}
