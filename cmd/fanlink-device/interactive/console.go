// Package interactive provides the interactive console of fanlink-device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/provision"
)

// Status is a snapshot shown by the status command.
type Status struct {
	DeviceID     string
	Desired      control.Values
	Reported     control.Values
	Connections  int
	AuthSlots    int
	AuthCapacity int
	QueueLen     int
	Listen       string
	WebSocket    string
}

// Controls is the device surface the console drives.
type Controls interface {
	Status() Status
	Set(field control.Field, value int64) error
	Credentials() (provision.Record, bool, error)
	SetKey(key []byte) error
	RequestUpdate(token string) error
}

// Console is a readline command loop.
type Console struct {
	rl   *readline.Instance
	ctrl Controls
}

// New creates a console on the terminal.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fanlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("status"),
			readline.PcItem("set",
				readline.PcItem("speed"), readline.PcItem("angle"),
				readline.PcItem("light"), readline.PcItem("power")),
			readline.PcItem("creds"),
			readline.PcItem("key"),
			readline.PcItem("update"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Attach sets the device the console controls.
func (c *Console) Attach(ctrl Controls) {
	c.ctrl = ctrl
}

// Stdout returns a writer that properly coordinates with the readline input.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the command loop. quit or EOF calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	printHelp(c.rl.Stdout())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
		if !Exec(c.ctrl, line, c.rl.Stdout()) {
			cancel()
			return
		}
	}
}

// Exec runs one command line against ctrl, writing output to w. It returns
// false when the console should exit.
func Exec(ctrl Controls, line string, w io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(w)
	case "status", "s":
		printStatus(w, ctrl.Status())
	case "set":
		cmdSet(ctrl, args, w)
	case "creds":
		cmdCreds(ctrl, w)
	case "key":
		if len(args) != 1 {
			fmt.Fprintln(w, "Usage: key <secret>")
			return true
		}
		if err := ctrl.SetKey([]byte(args[0])); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return true
		}
		fmt.Fprintln(w, "Key replaced. New challenges use the new key.")
	case "update":
		if len(args) != 1 {
			fmt.Fprintln(w, "Usage: update <token>")
			return true
		}
		if err := ctrl.RequestUpdate(args[0]); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return true
		}
		fmt.Fprintln(w, "Update requested; it runs at next start.")
	case "quit", "exit", "q":
		fmt.Fprintln(w, "Exiting...")
		return false
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func cmdSet(ctrl Controls, args []string, w io.Writer) {
	if len(args) != 2 {
		fmt.Fprintln(w, "Usage: set <speed|angle|light|power> <value>")
		return
	}
	field, err := control.ParseField(args[0])
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	v, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(w, "Error: invalid value %q\n", args[1])
		return
	}
	if err := ctrl.Set(field, v); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s = %d\n", field, v)
}

func cmdCreds(ctrl Controls, w io.Writer) {
	rec, ok, err := ctrl.Credentials()
	switch {
	case err != nil:
		fmt.Fprintf(w, "Error: %v\n", err)
	case !ok:
		fmt.Fprintln(w, "No credentials provisioned.")
	default:
		fmt.Fprintln(w, rec.String())
	}
}

func printStatus(w io.Writer, st Status) {
	fmt.Fprintf(w, "Device:      %s\n", st.DeviceID)
	if st.Listen != "" {
		fmt.Fprintf(w, "TCP:         %s\n", st.Listen)
	}
	if st.WebSocket != "" {
		fmt.Fprintf(w, "WebSocket:   %s\n", st.WebSocket)
	}
	fmt.Fprintf(w, "Connections: %d (auth slots %d/%d)\n", st.Connections, st.AuthSlots, st.AuthCapacity)
	fmt.Fprintf(w, "Queued:      %d\n", st.QueueLen)
	fmt.Fprintln(w, "Field   Desired  Reported")
	for _, f := range control.Fields {
		fmt.Fprintf(w, "%-7s %7d  %8d\n", f, st.Desired.Get(f), st.Reported.Get(f))
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
FanLink Device Commands:
  status              - Show connections and control values
  set <field> <value> - Apply a control value locally (speed, angle, light, power)
  creds               - Show provisioned credentials
  key <secret>        - Replace the HMAC key
  update <token>      - Request a firmware update at next start
  help                - Show this help
  quit                - Exit device`)
}
