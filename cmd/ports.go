// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var portsAll bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List serial ports the lidar may be attached to.

Legacy motherboard UARTs (ttyS*) are hidden by default because they
enumerate on most machines whether or not anything is wired to them.
Use --all to include them.

Exit codes:
  0 - At least one port listed
  1 - No ports found`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsAll, "all", false, "Include legacy ttyS* ports")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	shown := 0
	for _, portPath := range ports {
		name := portPath[strings.LastIndex(portPath, "/")+1:]
		if !portsAll && strings.HasPrefix(name, "ttyS") {
			continue
		}
		fmt.Printf("%-16s %s\n", portPath, portFriendlyName(name))
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(os.Stderr, "No serial ports found")
		os.Exit(1)
	}

	return nil
}

// portFriendlyName labels common device types
func portFriendlyName(deviceName string) string {
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return "USB serial adapter"
	case strings.HasPrefix(deviceName, "ttyACM"):
		return "USB CDC device"
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return "Raspberry Pi UART"
	case strings.HasPrefix(deviceName, "ttyS"):
		return "legacy UART"
	default:
		return ""
	}
}
