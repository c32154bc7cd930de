//go:build windows

// Windows service integration built on github.com/kardianos/service. Under
// the service control manager the server gets the same graceful shutdown
// path as a foreground run.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
)

// stopTimeout bounds how long a service stop waits for in-flight
// generations to drain before reporting failure to the control manager.
const stopTimeout = 90 * time.Second

// program adapts the server lifecycle to service.Interface. Start must
// return promptly, so the server runs in a goroutine and Stop cancels its
// context to trigger the usual shutdown sequence.
type program struct {
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	strictLoad bool
}

func (p *program) Start(_ service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		// Startup failures land in the log file; the control manager
		// only observes the exit.
		run(p.ctx, p.strictLoad)
	}()

	return nil
}

func (p *program) Stop(_ service.Service) error {
	p.cancel()

	select {
	case <-p.done:
		return nil
	case <-time.After(stopTimeout):
		return fmt.Errorf("server did not stop within %v", stopTimeout)
	}
}

// newService builds the control-manager registration shared by service mode
// and every management verb.
func newService(strictLoad bool) (service.Service, error) {
	return service.New(&program{strictLoad: strictLoad}, &service.Config{
		Name:        "sdserve",
		DisplayName: "Stable Diffusion API Server",
		Description: "Serves synchronous Stable Diffusion text-to-image generation over a local HTTP API",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	})
}

// RunAsService runs the server under the service control manager when the
// process is not attached to a console. The bool reports whether service
// mode was taken; interactive runs return (false, nil) immediately.
func RunAsService(strictLoad bool) (bool, error) {
	if service.Interactive() {
		return false, nil
	}

	s, err := newService(strictLoad)
	if err != nil {
		return true, fmt.Errorf("configuring service: %w", err)
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("running service: %w", err)
	}
	return true, nil
}

// serviceVerbs maps command-line verbs to control actions and the line
// printed on success. "remove" is accepted as an alias for uninstall.
var serviceVerbs = map[string]struct {
	action string
	done   string
}{
	"install":   {"install", "Service installed"},
	"uninstall": {"uninstall", "Service removed"},
	"remove":    {"uninstall", "Service removed"},
	"start":     {"start", "Service started"},
	"stop":      {"stop", "Service stopped"},
	"restart":   {"restart", "Service restarted"},
}

// HandleServiceCommand dispatches service management verbs from the command
// line and reports whether one was handled. Handled verbs print their result
// and exit the process on error.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	switch args[1] {
	case "status":
		reportServiceStatus()
		return true
	case "help":
		printServiceUsage()
		return true
	}

	verb, ok := serviceVerbs[args[1]]
	if !ok {
		return false
	}

	s, err := newService(false)
	if err == nil {
		err = service.Control(s, verb.action)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(verb.done)
	return true
}

func reportServiceStatus() {
	s, err := newService(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	status, err := s.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch status {
	case service.StatusRunning:
		fmt.Println("Service is running")
	case service.StatusStopped:
		fmt.Println("Service is stopped")
	default:
		fmt.Println("Service status unknown")
	}
}

func printServiceUsage() {
	fmt.Print(`Stable Diffusion API service management

Usage: sdserve.exe <command>

Commands:
  install    Register the server as a Windows service
  uninstall  Remove the service registration (alias: remove)
  start      Start the service
  stop       Stop the service
  restart    Restart the service
  status     Show the current service state
  help       Show this help

Run without arguments to serve in the foreground.
`)
}
