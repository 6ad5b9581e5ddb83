package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/transport"
)

var readCmd = &cobra.Command{
	Use:   "read <characteristic>",
	Short: "Read one characteristic",
	Long: `Read a characteristic by name or handle and print its value.

Control and status values are decoded; other values are printed as text when
printable and as hex otherwise.

Examples:
  fanlink-ctl --addr fan.local:7420 read status_speed
  fanlink-ctl --addr fan.local:7420 --auth none read nonce`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read every status characteristic",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(statusCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	char, err := parseCharacteristic(args[0])
	if err != nil {
		return err
	}
	return withClient(cmd, func(ctx context.Context, c *transport.Client) error {
		return readChar(ctx, c, char, cmd.OutOrStdout())
	})
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, c *transport.Client) error {
		return printStatus(ctx, c, cmd.OutOrStdout())
	})
}

// withClient opens a client for one short exchange bounded by --timeout.
func withClient(cmd *cobra.Command, fn func(context.Context, *transport.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, _, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func readChar(ctx context.Context, c *transport.Client, char gatt.Characteristic, w io.Writer) error {
	v, err := c.Read(ctx, char)
	if err != nil {
		return fmt.Errorf("read %s: %w", char, err)
	}
	fmt.Fprintln(w, formatValue(char, v))
	return nil
}

func printStatus(ctx context.Context, c *transport.Client, w io.Writer) error {
	for _, f := range control.Fields {
		char := gatt.StatusCharacteristic(f)
		raw, err := c.Read(ctx, char)
		if err != nil {
			return fmt.Errorf("read %s: %w", char, err)
		}
		v, ok := gatt.DecodeValue(f, raw)
		if !ok {
			return fmt.Errorf("read %s: unexpected %d-byte value", char, len(raw))
		}
		fmt.Fprintf(w, "%-6s %d\n", f.String()+":", v)
	}
	return nil
}
