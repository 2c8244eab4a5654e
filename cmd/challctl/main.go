// Command challctl is a development/testing aid for manually exercising a
// running challd instance — it is explicitly not the archive service
// itself (§6.3), just a thin cobra CLI over client/challdclient.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"challd/client/challdclient"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMsg("%v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challctl",
		Short: "Manually drive a running challd instance",
	}
	cmd.AddCommand(startGuestCmd(), startDemoCmd())
	return cmd
}

func startGuestCmd() *cobra.Command {
	var socketPath string
	var image string
	var ports []string
	var guestCode uint32

	cmd := &cobra.Command{
		Use:   "start-guest",
		Short: "Launch a guest session with a WireGuard tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := parsePorts(ports)
			if err != nil {
				return err
			}
			cfg, err := challdclient.StartGuest(context.Background(), socketPath, guestCode, image, mappings)
			if err != nil {
				return err
			}
			fmt.Println(successMsg("guest session launched"))
			fmt.Println(muted(cfg))
			return nil
		},
	}

	addCommonFlags(cmd, &socketPath, &image, &ports)
	cmd.Flags().Uint32Var(&guestCode, "guest-code", 0, "opaque guest code for audit logs")
	return cmd
}

func startDemoCmd() *cobra.Command {
	var socketPath string
	var image string
	var ports []string

	cmd := &cobra.Command{
		Use:   "start-demo",
		Short: "Launch an unattended demo session",
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := parsePorts(ports)
			if err != nil {
				return err
			}
			if _, err := challdclient.StartDemo(context.Background(), socketPath, image, mappings); err != nil {
				return err
			}
			fmt.Println(successMsg("demo session launched"))
			return nil
		},
	}

	addCommonFlags(cmd, &socketPath, &image, &ports)
	return cmd
}

func addCommonFlags(cmd *cobra.Command, socketPath, image *string, ports *[]string) {
	cmd.Flags().StringVar(socketPath, "socket", "./socket", "path to challd's request socket")
	cmd.Flags().StringVar(image, "image", "", "container image to launch")
	cmd.Flags().StringArrayVar(ports, "port", nil, "published port as from:to[/tcp|udp], repeatable")
	cmd.MarkFlagRequired("image")
}

// parsePorts turns "8080:30001/tcp" style flags into PortMapping entries.
func parsePorts(raw []string) ([]challdclient.PortMapping, error) {
	mappings := make([]challdclient.PortMapping, 0, len(raw))
	for _, entry := range raw {
		portType := challdclient.TCP
		spec := entry
		if idx := strings.LastIndex(entry, "/"); idx != -1 {
			spec = entry[:idx]
			switch entry[idx+1:] {
			case "tcp", "":
				portType = challdclient.TCP
			case "udp":
				portType = challdclient.UDP
			default:
				return nil, fmt.Errorf("invalid port protocol in %q", entry)
			}
		}

		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid port mapping %q, want from:to[/proto]", entry)
		}
		from, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid from_port in %q: %w", entry, err)
		}
		to, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid to_port in %q: %w", entry, err)
		}

		mappings = append(mappings, challdclient.PortMapping{
			FromPort: uint16(from),
			ToPort:   uint16(to),
			Type:     portType,
		})
	}
	return mappings, nil
}
