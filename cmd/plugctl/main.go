// Command plugctl is the CLI front-end to a running plugd daemon: list
// the fleet, query one device's status, command it on or off, trigger
// a config reload, or watch the fleet in a terminal dashboard.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/hpavctl/plugd/internal/plug"

	"github.com/spf13/pflag"
)

const defaultDialTimeout = 2 * time.Second

func main() {
	socketPath := pflag.StringP("control-socket", "s", "/run/plugd.sock", "daemon control socket path")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := dispatch(*socketPath, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "plugctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: plugctl [-s socket] <list|info MAC|on MAC|off MAC|reload|watch>")
}

func dispatch(socketPath, cmd string, rest []string) error {
	switch cmd {
	case "list":
		return cmdList(socketPath)
	case "info":
		if len(rest) != 1 {
			return fmt.Errorf("info requires exactly one MAC")
		}

		return cmdInfo(socketPath, rest[0])
	case "on", "off":
		if len(rest) != 1 {
			return fmt.Errorf("%s requires exactly one MAC", cmd)
		}

		return cmdOnOff(socketPath, cmd, rest[0])
	case "reload":
		return cmdReload(socketPath)
	case "watch":
		return runWatch(socketPath)
	default:
		usage()

		return fmt.Errorf("unknown command %q", cmd)
	}
}

func call(socketPath string, req plug.ControlRequest) (plug.ControlResponse, error) {
	client, err := plug.DialControl(socketPath, defaultDialTimeout)
	if err != nil {
		return plug.ControlResponse{}, err
	}
	defer client.Close()

	resp, err := client.Call(req)
	if err != nil {
		return plug.ControlResponse{}, err
	}

	if !resp.OK {
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}

	return resp, nil
}

func cmdList(socketPath string) error {
	resp, err := call(socketPath, plug.ControlRequest{Cmd: "list"})
	if err != nil {
		return err
	}

	for _, e := range resp.List {
		if e.Alias != "" {
			fmt.Printf("%s\t%s\n", e.MAC, e.Alias)
		} else {
			fmt.Println(e.MAC)
		}
	}

	return nil
}

func cmdInfo(socketPath, mac string) error {
	resp, err := call(socketPath, plug.ControlRequest{Cmd: "info", MAC: mac})
	if err != nil {
		return err
	}

	info := resp.Info
	fmt.Printf("alias:    %s\n", info.Alias)
	fmt.Printf("state:    %s\n", info.State)

	if info.Profile != "" {
		fmt.Printf("profile:  %s\n", info.Profile)
	} else {
		fmt.Printf("type:     %s\n", info.DeviceType)
	}

	if info.IsOnKnown {
		fmt.Printf("power:    %s\n", onOffString(info.IsOn))
	} else {
		fmt.Println("power:    unknown")
	}

	if info.PowerKnown {
		fmt.Printf("watts:    %.1f\n", info.Power)
	}

	return nil
}

func cmdOnOff(socketPath, cmd, mac string) error {
	_, err := call(socketPath, plug.ControlRequest{Cmd: cmd, MAC: mac})

	return err
}

func cmdReload(socketPath string) error {
	_, err := call(socketPath, plug.ControlRequest{Cmd: "reload"})

	return err
}

func onOffString(isOn bool) string {
	if isOn {
		return "on"
	}

	return "off"
}
