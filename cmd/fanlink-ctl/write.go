package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/transport"
)

var writeCmd = &cobra.Command{
	Use:   "write <characteristic> <value>",
	Short: "Write one characteristic",
	Long: `Write a value to a characteristic by name or handle.

Control characteristics take a decimal number. Other characteristics take the
argument as text, or as raw bytes when prefixed with "hex:".

Examples:
  fanlink-ctl --addr fan.local:7420 write control_speed 120
  fanlink-ctl --addr fan.local:7420 write packet 'speed=3 light=1'`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

var setCmd = &cobra.Command{
	Use:   "set <field>=<value>...",
	Short: "Send a control packet",
	Long: `Send one control packet setting any of speed, angle, light and power.

Example:
  fanlink-ctl --addr fan.local:7420 set speed=120 angle=45`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

var wifiCmd = &cobra.Command{
	Use:   "wifi <ssid> [password]",
	Short: "Provision network credentials",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runWifi,
}

var sendCmd = &cobra.Command{
	Use:   "send <packet>",
	Short: "Write a raw packet to the packet characteristic",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(wifiCmd)
	rootCmd.AddCommand(sendCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
	char, err := parseCharacteristic(args[0])
	if err != nil {
		return err
	}
	value, err := encodeWriteValue(char, args[1])
	if err != nil {
		return err
	}
	return writeAndReport(cmd, char, value)
}

func runSet(cmd *cobra.Command, args []string) error {
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}
	msg, err := controlPacket(values)
	if err != nil {
		return err
	}
	return writeAndReport(cmd, gatt.CharPacket, msg)
}

func runWifi(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 2 {
		password = args[1]
	}
	msg, err := wifiPacket(args[0], password)
	if err != nil {
		return err
	}
	return writeAndReport(cmd, gatt.CharPacket, msg)
}

func runSend(cmd *cobra.Command, args []string) error {
	return writeAndReport(cmd, gatt.CharPacket, []byte(args[0]))
}

func writeAndReport(cmd *cobra.Command, char gatt.Characteristic, value []byte) error {
	return withClient(cmd, func(ctx context.Context, c *transport.Client) error {
		return writeChar(ctx, c, char, value, cmd.OutOrStdout())
	})
}

func writeChar(ctx context.Context, c *transport.Client, char gatt.Characteristic, value []byte, w io.Writer) error {
	if err := c.Write(ctx, char, value); err != nil {
		return fmt.Errorf("write %s: %w", char, err)
	}
	fmt.Fprintf(w, "%s: %s\n", char, gatt.StatusOK)
	return nil
}
