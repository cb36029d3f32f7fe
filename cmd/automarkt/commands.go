package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ManuelReschke/AutoMarkt/app/repository"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/billing"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/database"
)

// runCommand handles the maintenance subcommands and returns the exit code
func runCommand(args []string) int {
	switch args[0] {
	case "apikey":
		if len(args) < 2 {
			fmt.Println("Usage: automarkt apikey <email>")
			return 1
		}
		return issueAPIKey(args[1])
	case "reconcile":
		return reconcileNow()
	default:
		printUsage()
		return 1
	}
}

func issueAPIKey(email string) int {
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	repo := repository.GetGlobalFactory().GetUserRepository()

	user, err := repo.GetByEmail(email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "User %s not found: %v\n", email, err)
		return 1
	}
	key, err := user.IssueAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not generate API key: %v\n", err)
		return 1
	}
	if err := repo.Update(user); err != nil {
		fmt.Fprintf(os.Stderr, "Could not store API key: %v\n", err)
		return 1
	}

	fmt.Printf("API key for %s (shown once): %s\n", user.Email, key)
	return 0
}

func reconcileNow() int {
	database.SetupDatabase()
	svc := billing.NewServiceFromDB(database.GetDB(), billing.NopNotifier{}, billing.LoadConfigFromEnv())

	report, err := svc.ReconcileEntitlements(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconciliation failed: %v\n", err)
		return 1
	}
	fmt.Printf("checked=%d pointers_cleared=%d promoted=%d demoted=%d\n",
		report.Checked, report.PointersCleared, report.Promoted, report.Demoted)
	return 0
}

func printUsage() {
	fmt.Println("Usage: automarkt [command]")
	fmt.Println("Without a command the HTTP server starts.")
	fmt.Println("Commands:")
	fmt.Println("  apikey <email> - issue a new API key for the user")
	fmt.Println("  reconcile      - run one entitlement reconciliation sweep")
}
