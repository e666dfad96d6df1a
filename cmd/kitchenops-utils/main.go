package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/kitchenops/cmd/kitchenops-utils/internal/commands"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
)

const (
	appName      = "kitchenops-utils"
	appVersion   = "0.1.0"
	appNamespace = "KITCHENOPS"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	location, configArgs := splitArgs(os.Args[2:])

	config, err := apt.LoadConfig(appNamespace, configArgs)
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel := config.GetStringOrDef("log.level", "info")
	logger := apt.NewLogger(logLevel)

	ctx := context.Background()

	switch command {
	case "bootstrap-stations":
		stations, err := commands.BootstrapStations(ctx, config, logger, location)
		if err != nil {
			log.Fatalf("Station bootstrap failed: %v", err)
		}
		logger.Info("stations bootstrapped", "location_id", kitchen.NormalizeLocationID(location), "count", len(stations))
		printJSON(stations)

	case "sweep":
		res, err := commands.Sweep(ctx, config, logger, location)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		logger.Info("sweep completed", "location_id", res.LocationID, "health", res.HealthStatus)
		printJSON(res)

	case "reset-db":
		if err := commands.ResetDB(ctx, config, logger); err != nil {
			log.Fatalf("Database reset failed: %v", err)
		}
		logger.Info("database reset completed")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// splitArgs takes an optional leading location argument off the config flags.
func splitArgs(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Cannot encode result: %v", err)
	}
	fmt.Println(string(out))
}

func printUsage() {
	fmt.Printf(`%s - kitchenops utility commands

Usage:
  %s <command> [location] [options]

Commands:
  bootstrap-stations  Create the default stations of a location (default: "default")
  sweep               Run one SLO escalation sweep for a location
  reset-db            Drop the collections owned by kitchenops (USE WITH CAUTION)
  version             Print version information
  help                Show this help message

Environment Variables:
  KITCHENOPS_DB_MONGO_URL   MongoDB connection URL (default: mongodb://localhost:27017)
  KITCHENOPS_DB_MONGO_NAME  Database name (default: kitchenops)
  KITCHENOPS_REDIS_ADDR     Redis address for the shared sweep lock (optional)
  KITCHENOPS_LOG_LEVEL      Log level: debug, info, warn, error (default: info)

Examples:
  %s bootstrap-stations north
  %s sweep north

`, appName, appName, appName, appName)
}
