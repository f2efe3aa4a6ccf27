package command

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
)

// Reader turns an input stream of operator lines into submitted
// commands. EOF on the input is treated as an implicit quit so that
// piping a command script still shuts the client down cleanly.
type Reader struct {
	input   io.Reader
	output  io.Writer
	ingress *Ingress
	logger  *slog.Logger
}

// NewReader creates a Reader. Output receives parse feedback and the
// help text; typically os.Stdout.
func NewReader(input io.Reader, output io.Writer, ingress *Ingress, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		input:   input,
		output:  output,
		ingress: ingress,
		logger:  logger.With("component", "command"),
	}
}

// Run reads lines until EOF or context cancellation. It blocks; run it
// on its own goroutine.
func (r *Reader) Run(ctx context.Context) {
	fmt.Fprintln(r.output, "Type 'help' for commands.")

	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		cmd, err := ParseLine(scanner.Text())
		if err != nil {
			if stderrors.Is(err, ErrEmptyLine) {
				continue
			}
			fmt.Fprintf(r.output, "%v\n", err)
			fmt.Fprintln(r.output, "Type 'help' for commands.")
			continue
		}

		if cmd.Kind == KindHelp {
			fmt.Fprintln(r.output, HelpText)
			continue
		}

		if err := r.ingress.Submit(cmd); err != nil {
			r.logger.Warn("command not queued", "kind", cmd.Kind.String(), "error", err)
		}

		if cmd.Kind == KindQuit {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		r.logger.Warn("input read error", "error", err)
	}

	// EOF: shut down as if the operator had typed quit
	if err := r.ingress.Submit(Command{Kind: KindQuit}); err != nil {
		r.logger.Warn("quit not queued after input close", "error", err)
	}
}
