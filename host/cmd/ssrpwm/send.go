package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ssrpwm/host/client"
	"ssrpwm/host/serial"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [args...]",
	Short: "Send one command to a controller and print the reply",
	Example: `  ssrpwm send -d /dev/ttyACM0 startPwm 2 1000 250 0
  ssrpwm send -d /dev/ttyACM0 getRelaysStatus`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		return sendLine(cmd.Context(), c, strings.Join(args, " "), timeout, cmd.OutOrStdout())
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive command prompt for a controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, closer, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		return console(cmd.Context(), c, timeout, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	for _, cmd := range []*cobra.Command{sendCmd, consoleCmd} {
		cmd.Flags().StringP("device", "d", "/dev/ttyACM0", "Serial device path")
		cmd.Flags().Int("baud", 115200, "Baud rate (ignored for USB CDC)")
		cmd.Flags().Duration("timeout", 500*time.Millisecond, "How long to wait for a reply")
	}
}

func dial(cmd *cobra.Command) (*client.Client, io.Closer, error) {
	device, _ := cmd.Flags().GetString("device")
	baud, _ := cmd.Flags().GetInt("baud")

	cfg := serial.DefaultConfig(device)
	cfg.Baud = baud
	return client.Dial(cfg)
}

// sendLine sends line and prints whatever comes back before timeout.
// Most commands have no reply.
func sendLine(ctx context.Context, c *client.Client, line string, timeout time.Duration, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lines, err := c.QueryAll(ctx, line)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}

func console(ctx context.Context, c *client.Client, timeout time.Duration, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Enter commands ('help' lists them, 'quit' exits)")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			line = "getCommands"
		}

		if err := sendLine(ctx, c, line, timeout, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}
