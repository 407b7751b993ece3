package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
)

// DebugConsole is an interactive introspection REPL gated behind -debug,
// adapted from src/debug_worker.go's readline loop but trimmed to this
// domain's state: Gateway View snapshots and the Enable Gate. It has no
// access to the Regulator or its last setpoint.
type DebugConsole struct {
	view *GatewayView
	gate *EnableGate
	log  *logrus.Logger
}

// NewDebugConsole builds a console over view and gate.
func NewDebugConsole(view *GatewayView, gate *EnableGate, log *logrus.Logger) *DebugConsole {
	return &DebugConsole{view: view, gate: gate, log: log}
}

func historyFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "zeroexport")
	_ = os.MkdirAll(dir, 0750)
	return filepath.Join(dir, "debug_history")
}

// Run starts the REPL, blocking until ctx is cancelled or stdin closes.
func (c *DebugConsole) Run(ctx context.Context, cancel context.CancelFunc) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: historyFilePath(),
	})
	if err != nil {
		c.log.WithError(err).Error("debug console: readline init failed")
		return
	}
	defer rl.Close()

	c.log.Info("debug console started (type 'help' for commands)")

	commands := make(chan string, 10)
	go c.readlineLoop(ctx, cancel, rl, commands)

	for {
		select {
		case cmd := <-commands:
			c.handle(cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (c *DebugConsole) readlineLoop(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance, commands chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel()
			return
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line != "" {
			commands <- line
		}
	}
}

func (c *DebugConsole) handle(cmd string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "help":
		fmt.Println("commands: gate, power <serial>, reachable <serial>, gridpower")

	case "gate":
		fmt.Printf("enable gate: %v\n", c.gate.Enabled())

	case "power":
		if len(parts) < 2 {
			fmt.Println("usage: power <serial>")
			return
		}
		fmt.Printf("%s: power=%.1fW limit=%.1fW reachable=%v\n",
			parts[1], c.view.Power(parts[1]), c.view.LimitApplied(parts[1]), c.view.Reachable(parts[1]))

	case "reachable":
		if len(parts) < 2 {
			fmt.Println("usage: reachable <serial>")
			return
		}
		fmt.Printf("%v\n", c.view.Reachable(parts[1]))

	case "gridpower":
		fmt.Printf("%.1fW\n", c.view.GatewayACPower())

	default:
		fmt.Printf("unknown command: %s (try 'help')\n", parts[0])
	}
}
