// Command cachectl inspects an on-disk taskcache tree: show aggregate
// statistics, list the objects it holds, force a cleanup pass, or verify
// every object's checksum against its recorded content hash.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	taskcache "github.com/cuenv-dev/taskcache"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)

		return 2
	}

	sub, rest := args[0], args[1:]

	var cmd func([]string, io.Writer, io.Writer) int

	switch sub {
	case "stats":
		cmd = cmdStats
	case "list":
		cmd = cmdList
	case "gc":
		cmd = cmdGC
	case "verify":
		cmd = cmdVerify
	case "-h", "--help", "help":
		printUsage(stdout)

		return 0
	default:
		fmt.Fprintf(stderr, "cachectl: unknown subcommand %q\n", sub)
		printUsage(stderr)

		return 2
	}

	return cmd(rest, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: cachectl <stats|list|gc|verify> --dir <cache-dir> [flags]")
}

// dirFlag builds the flag set every subcommand shares: a required --dir
// pointing at the cache root, and --json for machine-readable output.
func dirFlag(name string, w io.Writer) (*pflag.FlagSet, *string, *bool) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(w)

	dir := fs.StringP("dir", "C", "", "path to the cache's base directory (required)")
	asJSON := fs.Bool("json", false, "emit machine-readable JSON instead of text")

	return fs, dir, asJSON
}

func openCache(dir string) (*taskcache.Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cachectl: --dir is required")
	}

	return taskcache.New(dir)
}

func cmdStats(args []string, stdout, stderr io.Writer) int {
	fs, dir, asJSON := dirFlag("stats", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := openCache(*dir)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}
	defer c.Close()

	stats := c.Statistics()

	if *asJSON {
		return encodeJSON(stdout, stderr, stats)
	}

	fmt.Fprintf(stdout, "hits:             %d\n", stats.Hits)
	fmt.Fprintf(stdout, "misses:           %d\n", stats.Misses)
	fmt.Fprintf(stdout, "hit rate:         %.2f%%\n", stats.HitRatePercent)
	fmt.Fprintf(stdout, "writes:           %d\n", stats.Writes)
	fmt.Fprintf(stdout, "removals:         %d\n", stats.Removals)
	fmt.Fprintf(stdout, "errors:           %d\n", stats.Errors)
	fmt.Fprintf(stdout, "entries:          %d\n", stats.EntryCount)
	fmt.Fprintf(stdout, "total bytes:      %d\n", stats.TotalBytes)
	fmt.Fprintf(stdout, "expired cleanups: %d\n", stats.ExpiredCleanups)
	fmt.Fprintf(stdout, "memory bytes:     %d\n", stats.MemoryBytes)
	fmt.Fprintf(stdout, "disk bytes:       %d\n", stats.DiskBytes)

	return 0
}

func cmdList(args []string, stdout, stderr io.Writer) int {
	fs, dir, asJSON := dirFlag("list", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := openCache(*dir)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}
	defer c.Close()

	objects, err := c.ListObjects()
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	if *asJSON {
		return encodeJSON(stdout, stderr, objects)
	}

	for _, obj := range objects {
		fmt.Fprintf(stdout, "%s  size=%d  access_count=%d  expires=%v\n",
			obj.Digest, obj.Metadata.SizeBytes, obj.Metadata.AccessCount, obj.Metadata.ExpiresAt)
	}

	return 0
}

func cmdGC(args []string, stdout, stderr io.Writer) int {
	fs, dir, _ := dirFlag("gc", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := openCache(*dir)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}
	defer c.Close()

	c.RunCleanup()
	fmt.Fprintln(stdout, "cleanup pass complete")

	return 0
}

func cmdVerify(args []string, stdout, stderr io.Writer) int {
	fs, dir, asJSON := dirFlag("verify", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := openCache(*dir)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}
	defer c.Close()

	report, err := c.VerifyAll()
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	if *asJSON {
		return encodeJSON(stdout, stderr, report)
	}

	fmt.Fprintf(stdout, "checked:  %d\n", report.Checked)
	fmt.Fprintf(stdout, "corrupt:  %d\n", len(report.Corrupt))

	for _, path := range report.Corrupt {
		fmt.Fprintf(stdout, "  corrupt: %s\n", path)
	}

	fmt.Fprintf(stdout, "orphaned: %d\n", len(report.Orphaned))

	for _, path := range report.Orphaned {
		fmt.Fprintf(stdout, "  orphaned: %s\n", path)
	}

	if len(report.Corrupt) > 0 {
		return 1
	}

	return 0
}

func encodeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	return 0
}
