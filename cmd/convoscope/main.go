package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hurttlocker/convoscope/internal/config"
)

const version = "0.3.0"

// globals holds the flags accepted by every command.
var globals config.ResolveOptions

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var runErr error
	switch args[0] {
	case "process":
		runErr = runProcess(args[1:])
	case "classify":
		runErr = runClassify(args[1:])
	case "kb":
		runErr = runKB(args[1:])
	case "match":
		runErr = runMatch(args[1:])
	case "serve":
		runErr = runServe(args[1:])
	case "stats":
		runErr = runStats(args[1:])
	case "config":
		runErr = runConfig(args[1:])
	case "schema":
		runErr = runSchema(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("convoscope %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// parseGlobalFlags strips the global flags from args into globals and
// returns the remaining arguments.
func parseGlobalFlags(args []string) ([]string, error) {
	targets := map[string]*string{
		"--config":    &globals.ConfigPath,
		"--db":        &globals.CLIDBPath,
		"--lexicon":   &globals.CLILexicon,
		"--workers":   &globals.CLIWorkers,
		"--model":     &globals.CLIModel,
		"--log-level": &globals.CLILogLevel,
	}

	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		dst, ok := targets[name]
		if !ok {
			rest = append(rest, args[i])
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		*dst = strings.TrimSpace(value)
	}
	return rest, nil
}

func printUsage() {
	fmt.Printf(`convoscope %s - customer-service conversation analytics

Usage:
  convoscope [global flags] <command> [arguments]

Commands:
  process <path...>       Assemble, filter, classify and persist conversations
  classify <path...>      Classify conversations and print the intent report
  kb build <path...>      Mine an FAQ knowledge base from quality conversations
  kb load <kb.json>       Load a knowledge base document into the store
  match <query>           Match a customer question against the knowledge base
  serve                   Run the MCP server over stdio
  stats                   Show store statistics and recent runs
  config                  Show the resolved configuration and where each value came from
  schema                  Print the JSON schema of the LLM analysis
  version                 Print version

Process Flags:
  --out <dir>             Write conversations.json, intents.json and report.json
  --strategy <name>       keyword, cascade or contextual
  --analyze               Run the LLM analyzer on accepted conversations
  --no-store              Do not persist the run
  -r, --recursive         Recurse into directories

Classify Flags:
  --strategy <name>       keyword, cascade, contextual or all (compare)
  --json                  Print the report as JSON

KB Flags:
  --out <path>            Output document for kb build (.json or .yaml)
  --min-quality <x>       Minimum conversation quality for kb build

Match Flags:
  --kb <path>             Knowledge base document (default: the store)
  --top <n>               Maximum number of matches
  --json                  Print the match result as JSON

Global Flags:
  --config <path>         Config file (default: ~/.convoscope/config.yaml)
  --db <path>             SQLite database (default: ~/.convoscope/convoscope.db)
  --lexicon <path>        YAML lexicon overrides
  --workers <n>           Pipeline worker count
  --model <name>          LLM model for --analyze
  --log-level <level>     debug, info, warn or error
  -h, --help              Show this help message
  -v, --version           Print version
`, version)
}
