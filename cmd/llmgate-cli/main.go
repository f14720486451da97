package main

import (
	"fmt"
	"os"

	"github.com/yourname/llmgate/cmd/llmgate-cli/commands"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "stats":
		commands.StatsCommand()
	case "records":
		commands.RecordsCommand()
	case "sessions":
		commands.SessionsCommand()
	case "verify":
		commands.VerifyCommand()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("llmgate-cli - Usage Ledger Reporting Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  llmgate-cli stats [session-id]     Token and cost totals (latest session by default)")
	fmt.Println("  llmgate-cli records [n]            Show the n most recent usage records (default 10)")
	fmt.Println("  llmgate-cli sessions               List recorded sessions")
	fmt.Println("  llmgate-cli verify [session-id]    Verify the record hash chain")
	fmt.Println()
	fmt.Println("The ledger path comes from LLMGATE_DB (default: data/llmgate.db).")
}
