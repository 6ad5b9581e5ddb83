// Command fanlink-log views and analyzes FanLink capture files.
//
// Capture files are written by fanlink-device when started with -capture.
//
// Usage:
//
//	fanlink-log <command> [flags] <file.cbor>
//
// Examples:
//
//	# View authentication events only
//	fanlink-log view -category auth capture.cbor
//
//	# Export to CSV
//	fanlink-log export -format csv -o capture.csv capture.cbor
//
//	# Keep one session
//	fanlink-log filter -session 5f0c1a2b-... -o session.cbor capture.cbor
//
//	# Per-session summary
//	fanlink-log stats capture.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fanlink/fanlink-go/cmd/fanlink-log/commands"
)

const usage = `fanlink-log - FanLink capture file analyzer

Usage:
  fanlink-log <command> [flags] <file.cbor>

Commands:
  view     Print events in human-readable form
  export   Export events as JSON lines or CSV
  filter   Write matching events to a new capture file
  stats    Summarize the capture by layer, category and session

Use "fanlink-log <command> -help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "fanlink-log %s - %s\n\nUsage:\n  fanlink-log %s [flags] <file.cbor>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

// inputPath returns the single positional argument.
func inputPath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("capture file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "print events in human-readable form")
	var opts commands.FilterOptions
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, gateway, command)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, access, auth, command, state, error)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.UintVar(&opts.Handle, "handle", 0, "Filter by connection handle")
	_ = fs.Parse(args)

	path, err := inputPath(fs)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "export events as JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	path, err := inputPath(fs)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "write matching events to a new capture file")
	var opts commands.FilterOptions
	output := fs.String("o", "", "Output file (required)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.UintVar(&opts.Handle, "handle", 0, "Filter by connection handle")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by device ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, gateway, command)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, access, auth, command, state, error)")
	_ = fs.Parse(args)

	path, err := inputPath(fs)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	n, err := commands.RunFilter(path, *output, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "summarize the capture by layer, category and session")
	_ = fs.Parse(args)

	path, err := inputPath(fs)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
