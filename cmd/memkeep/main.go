// Command memkeep manages a project's hierarchical memory corpus from
// the command line: contexts, links, leaf documents, full-text search
// and index maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/memkeep/memkeep/config"
	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/index"
	"github.com/memkeep/memkeep/logger"
	"github.com/memkeep/memkeep/project"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: memkeep <command> [flags]

Commands:
  init                      provision a memory root in the current project
  context add <name>        create a context
  memory add <context> <subcontext> <title>   create a memory (body from stdin)
  memory show <path>        print a memory document
  search <query>            full-text search
  similar <path>            find documents similar to one
  tree                      print the corpus hierarchy
  stats                     print corpus statistics
  validate                  validate the whole corpus
  cleanup                   remove broken links
  reindex                   rebuild the search index from disk
  repair                    repair drifted tag metadata in the index
`)
}

func run() error {
	flags := pflag.NewFlagSet("memkeep", pflag.ContinueOnError)
	var (
		dir        = flags.String("dir", ".", "project directory")
		logFile    = flags.String("logfile", "", "path to log file; defaults to stderr-silent")
		pretty     = flags.Bool("pretty", false, "pretty console log output")
		limit      = flags.Int("limit", 0, "result limit for search/similar")
		offset     = flags.Int("offset", 0, "result offset for search")
		tags       = flags.StringSlice("tag", nil, "tag filter / memory tags")
		contexts   = flags.StringSlice("context", nil, "context filter for search")
		subs       = flags.StringSlice("subcontext", nil, "subcontext filter for search")
		importance = flags.String("importance", "", "importance (low|medium|high|critical)")
		desc       = flags.String("desc", "", "description for context/link creation")
		priority   = flags.Int("priority", 1, "priority for context creation")
		asJSON     = flags.Bool("json", false, "print machine-readable JSON")
	)
	flags.Usage = usage
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	log, err := logger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}
	memoryDir := cfg.MemoryDir
	if !filepath.IsAbs(memoryDir) {
		memoryDir = filepath.Join(*dir, memoryDir)
	}

	proj, err := project.Open(memoryDir, project.Options{
		Logger:  log,
		Project: cfg.ProjectName,
	})
	if err != nil {
		return err
	}
	defer proj.Close() //nolint:errcheck // nothing to do about close errors on exit

	if err := proj.Load(); err != nil {
		return err
	}

	ctx := context.Background()
	switch args[0] {
	case "init":
		if err := proj.Init(); err != nil {
			return err
		}
		fmt.Println("memory root initialized at", memoryDir)
		return nil

	case "context":
		if len(args) < 3 || args[1] != "add" {
			return fmt.Errorf("usage: memkeep context add <name>")
		}
		name, err := proj.CreateContext(args[2], *desc, *priority)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil

	case "memory":
		if len(args) < 2 {
			return fmt.Errorf("usage: memkeep memory add|show ...")
		}
		switch args[1] {
		case "add":
			if len(args) != 5 {
				return fmt.Errorf("usage: memkeep memory add <context> <subcontext> <title>")
			}
			body, err := readStdin()
			if err != nil {
				return err
			}
			rel, err := proj.CreateMemory(ctx, args[2], args[3], args[4], body, *tags, format.Importance(*importance))
			if err != nil {
				return err
			}
			fmt.Println(rel)
			return nil
		case "show":
			if len(args) != 3 {
				return fmt.Errorf("usage: memkeep memory show <path>")
			}
			mem, err := proj.ReadMemory(args[2])
			if err != nil {
				return err
			}
			return printResult(mem, *asJSON, func() {
				fmt.Printf("# %s  [%s]\n\n%s", mem.Title, mem.Importance, mem.Content)
			})
		}
		return fmt.Errorf("unknown memory subcommand %q", args[1])

	case "search":
		if len(args) != 2 {
			return fmt.Errorf("usage: memkeep search <query>")
		}
		resp, err := proj.Search(ctx, args[1], index.Options{
			Contexts:    *contexts,
			Subcontexts: *subs,
			Tags:        *tags,
			Importance:  importanceFilter(*importance),
			Limit:       searchLimit(*limit, cfg),
			Offset:      *offset,
		})
		if err != nil {
			return err
		}
		return printResult(resp, *asJSON, func() {
			fmt.Printf("%d results\n", resp.Total)
			for _, r := range resp.Results {
				fmt.Printf("%6.2f  %-40s  %s\n        %s\n", r.Score, r.Path, r.Title, r.Snippet)
			}
		})

	case "similar":
		if len(args) != 2 {
			return fmt.Errorf("usage: memkeep similar <path>")
		}
		results, err := proj.FindSimilar(ctx, args[1], *limit)
		if err != nil {
			return err
		}
		return printResult(results, *asJSON, func() {
			for _, r := range results {
				fmt.Printf("%6.2f  %s\n", r.Score, r.Path)
			}
		})

	case "tree":
		contextFilter := ""
		if len(args) > 1 {
			contextFilter = args[1]
		}
		tree, err := proj.GetTree(contextFilter, 0)
		if err != nil {
			return err
		}
		return printResult(tree, *asJSON, func() { printTree(tree, "") })

	case "stats":
		stats, err := proj.GetStats(ctx)
		if err != nil {
			return err
		}
		return printResult(stats, true, nil)

	case "validate":
		report, err := proj.ValidateSystem()
		if err != nil {
			return err
		}
		if err := printResult(report, *asJSON, func() {
			for _, e := range report.Errors {
				fmt.Println("error:", e)
			}
			for _, w := range report.Warnings {
				fmt.Println("warning:", w)
			}
		}); err != nil {
			return err
		}
		if !report.Valid {
			return fmt.Errorf("corpus is invalid (%d errors)", len(report.Errors))
		}
		return nil

	case "cleanup":
		report, err := proj.CleanupBrokenLinks()
		if err != nil {
			return err
		}
		return printResult(report, *asJSON, func() {
			fmt.Printf("removed %d broken links\n", report.Removed)
		})

	case "reindex":
		report, err := proj.Reindex(ctx)
		if err != nil {
			return err
		}
		return printResult(report, *asJSON, func() {
			fmt.Printf("indexed %d documents, %d errors\n", report.Indexed, len(report.Errors))
		})

	case "repair":
		report, err := proj.RepairIndex(ctx)
		if err != nil {
			return err
		}
		return printResult(report, *asJSON, func() {
			fmt.Printf("scanned %d rows, repaired %d\n", report.Scanned, report.Repaired)
		})
	}

	usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func searchLimit(flagLimit int, cfg *config.Config) int {
	if flagLimit > 0 {
		return flagLimit
	}
	return cfg.Search.DefaultLimit
}

func importanceFilter(value string) []format.Importance {
	if value == "" {
		return nil
	}
	return []format.Importance{format.Importance(value)}
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading body from stdin: %w", err)
	}
	return string(data), nil
}

func printResult(v any, asJSON bool, plain func()) error {
	if asJSON || plain == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}

func printTree(node *project.TreeNode, indent string) {
	fmt.Printf("%s%s\n", indent, node.Name)
	for _, child := range node.Children {
		printTree(child, indent+"  ")
	}
}
