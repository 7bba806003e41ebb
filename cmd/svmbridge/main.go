package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"
)

// command is one action of the CLI.
type command struct {
	name     string
	synopsis string
	args     handler
}

type handler interface {
	Run(ctx context.Context, logger *zap.Logger) error
}

type verbosity interface {
	verbose() bool
}

func prog() string {
	if len(os.Args) > 0 {
		return filepath.Base(os.Args[0])
	}
	return "svmbridge"
}

func writeUsage(w io.Writer, cmds []command) {
	fmt.Fprintf(w, "Usage: %s COMMAND [ARGS]\n", prog())
	fmt.Fprintf(w, "Command can be one of:\n")
	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %-20s %s\n", cmd.name, cmd.synopsis)
	}
	fmt.Fprintf(w, "  %-20s %s\n", "help COMMAND", "display help for command and exit")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cmds := []command{
		{"train", "train a model through libsvm and save it", &trainArgs{}},
		{"classify", "score a data file with a saved model", &classifyArgs{}},
		{"inspect", "summarise or convert a saved model", &inspectArgs{}},
	}

	if len(os.Args) < 2 {
		writeUsage(os.Stderr, cmds)
		os.Exit(2)
	}
	action, help := os.Args[1], false
	if action == "help" || action == "-h" || action == "--help" {
		if len(os.Args) < 3 {
			writeUsage(os.Stdout, cmds)
			return
		}
		action, help = os.Args[2], true
	}

	var cmd *command
	for i := range cmds {
		if cmds[i].name == action {
			cmd = &cmds[i]
		}
	}
	if cmd == nil {
		writeUsage(os.Stderr, cmds)
		fmt.Fprintln(os.Stderr, "\nError: unknown command", action)
		os.Exit(2)
	}

	parser, err := arg.NewParser(arg.Config{Program: prog() + " " + action}, cmd.args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if help {
		parser.WriteHelp(os.Stdout)
		return
	}
	if err := parser.Parse(os.Args[2:]); err != nil {
		if err == arg.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return
		}
		parser.Fail(err.Error())
	}

	verbose := false
	if v, ok := cmd.args.(verbosity); ok {
		verbose = v.verbose()
	}
	logger, err := newLogger(verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.args.Run(ctx, logger); err != nil {
		logger.Error(action+" failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
