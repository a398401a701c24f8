package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ErrInputClosed is returned when the operator closes standard input.
var ErrInputClosed = errors.New("input terminated")

// Prompter asks the operator questions on a terminal.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewPrompter creates a prompter reading from r and writing to w. Nil
// arguments default to the process's standard streams.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Prompter{reader: bufio.NewReader(r), writer: w}
}

// Writer returns the output stream.
func (p *Prompter) Writer() io.Writer { return p.writer }

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Ask prints question and returns the answer, or def when the answer is
// blank.
func (p *Prompter) Ask(ctx context.Context, question, def string) (string, error) {
	prompt := question
	if def != "" {
		prompt += " [" + def + "]"
	}
	if _, err := fmt.Fprintf(p.writer, "%s: ", PromptStyle.Render(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// AskRequired repeats question until a non-blank answer is given.
func (p *Prompter) AskRequired(ctx context.Context, question string) (string, error) {
	for {
		answer, err := p.Ask(ctx, question, "")
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		if _, err := fmt.Fprintln(p.writer, WarningStyle.Render("A value is required.")); err != nil {
			return "", fmt.Errorf("failed to write warning: %w", err)
		}
	}
}

// Confirm asks a yes/no question. Blank means no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		answer, err := p.Ask(ctx, question+" (y/N)", "")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		if _, err := fmt.Fprintln(p.writer, WarningStyle.Render("Please answer y or n.")); err != nil {
			return false, fmt.Errorf("failed to write warning: %w", err)
		}
	}
}

// Spin shows a spinner with description while fn runs.
func (p *Prompter) Spin(description string, fn func()) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	fn()
	close(done)
	_ = bar.Finish()
}
