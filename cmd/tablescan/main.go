// Package main provides the tablescan CLI - a random-access reader for
// gigabyte-scale delimited-text files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablescan/tablescan/internal/reader"
)

const (
	Version   = "0.1.0"
	BuildDate = "2026-07-29"
)

var shutdownChan = make(chan os.Signal, 1)

func setupSignalHandler() {
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	go handleShutdown()
}

// handleShutdown lets Ctrl-C/SIGTERM interrupt a long-running build or open
// instead of silently disabling the runtime's default signal disposition.
func handleShutdown() {
	<-shutdownChan
	fmt.Fprintln(os.Stderr, "tablescan: received shutdown signal, exiting")
	os.Exit(130) // standard exit code for SIGINT
}

func main() {
	setupSignalHandler()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "open":
		runOpen(os.Args[2:])
	case "page":
		runPage(os.Args[2:])
	case "build":
		runBuild(os.Args[2:])
	case "version":
		fmt.Printf("tablescan v%s (%s)\n", Version, BuildDate)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tablescan - random-access reader for large delimited-text files

Usage:
    tablescan <command> [arguments]

Commands:
    open      Open a source and print its published info as JSON
    page      Read one page of records and print them as JSON
    build     Load a valid persisted index or build the full index, and report timing
    version   Print version information
    help      Show this message`)
}

func commonFlags(fs *flag.FlagSet) (path *string, headers *bool, delim *string, granularity *int64) {
	path = fs.String("input", "", "Source file path")
	headers = fs.Bool("headers", true, "First record is a header row")
	delim = fs.String("delimiter", ",", "Single-byte field delimiter")
	granularity = fs.Int64("granularity", 1000, "Index anchor granularity")
	return
}

func openOptions(path string, headers bool, delim string, granularity int64) reader.Options {
	d := byte(',')
	if len(delim) > 0 {
		d = delim[0]
	}
	return reader.Options{
		Path:             path,
		HasHeaders:       headers,
		Delimiter:        d,
		IndexGranularity: granularity,
	}
}

func runOpen(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	path, headers, delim, granularity := commonFlags(fs)
	fast := fs.Bool("fast", false, "Use the bounded-latency fast-open path")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --input is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	opts := openOptions(*path, *headers, *delim, *granularity)

	var r *reader.Reader
	var err error
	if *fast {
		r, _, err = reader.OpenFast(opts)
	} else {
		r, err = reader.Open(opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r.Info())
}

func runPage(args []string) {
	fs := flag.NewFlagSet("page", flag.ExitOnError)
	path, headers, delim, granularity := commonFlags(fs)
	page := fs.Int64("page", 0, "Page number")
	pageSize := fs.Int64("size", 100, "Page size in rows")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --input is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	opts := openOptions(*path, *headers, *delim, *granularity)
	r, _, err := reader.OpenFast(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	records, err := r.ReadPage(*page, *pageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = rec.Fields
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	path, headers, delim, granularity := commonFlags(fs)
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --input is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	opts := openOptions(*path, *headers, *delim, *granularity)

	start := time.Now()
	r, err := reader.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	elapsed := time.Since(start)
	info := r.Info()
	fmt.Printf("Indexed %d rows from %s in %s\n", info.TotalRows, info.FilePath, elapsed)
}
