// Command tagctl manages hashtag subscriptions directly against the store:
// list suggestions, add new ones, and approve them for aggregation.
//
// Usage:
//
//	tagctl [-db data/db.sqlite3] list
//	tagctl [-db data/db.sqlite3] suggest <hashtag>
//	tagctl [-db data/db.sqlite3] approve <hashtag>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tagmirror/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "data/db.sqlite3", "path to the sqlite index database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: tagctl [-db path] list | suggest <hashtag> | approve <hashtag>")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch args[0] {
	case "list":
		suggestions, err := store.ListSuggestions(ctx)
		if err != nil {
			return err
		}
		for _, s := range suggestions {
			state := "pending"
			if s.Approved {
				state = "approved"
			}
			fmt.Printf("%-30s %-9s %d votes\n", s.Name, state, s.Votes)
		}
		return nil

	case "suggest":
		if len(args) != 2 {
			return fmt.Errorf("usage: tagctl suggest <hashtag>")
		}
		return store.IncrementVote(ctx, args[1])

	case "approve":
		if len(args) != 2 {
			return fmt.Errorf("usage: tagctl approve <hashtag>")
		}
		if err := store.Approve(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("approved %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
