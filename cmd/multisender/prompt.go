package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

func isTerminal() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func readPassword(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// errStdinPrompt rejects interactive confirmation when stdin already carried the recipients.
var errStdinPrompt = errors.New("recipients were read from stdin, so prompts cannot be answered: pass --yes or use --file")

func fromStdin(path string) bool { return path == "" || path == "-" }

// confirm reads one answer from in. Callers share one reader per command so that
// buffered input is not lost between prompts.
func confirm(in *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt+" [y/N]: ")
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// readInput reads the recipients file, or stdin for "" and "-".
func readInput(r io.Reader, path string) (string, error) {
	if fromStdin(path) {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read recipients: %w", err)
	}
	return string(b), nil
}
