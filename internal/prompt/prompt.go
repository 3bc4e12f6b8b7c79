// Package prompt reads interactive answers from a terminal or any reader.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"gmab/internal/config"
)

// Prompter asks questions on out and reads answers from in.
// End of input accepts the default of every remaining question.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// fd is the terminal behind in, or -1
	fd int
}

// New creates a Prompter. Secrets are read without echo when in is a terminal.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(p.out)
		return "", io.EOF
	}
	return strings.TrimSpace(line), nil
}

// String asks for free text. A blank answer keeps def.
func (p *Prompter) String(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	answer, err := p.readLine()
	if errors.Is(err, io.EOF) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Int asks for an integer, repeating the question until one is given.
func (p *Prompter) Int(label string, def int) (int, error) {
	for {
		answer, err := p.String(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil {
			return n, nil
		}
		fmt.Fprintf(p.out, "Error: '%s' is not a valid integer.\n", answer)
	}
}

// Choice asks for one of choices, matched case-insensitively.
func (p *Prompter) Choice(label string, choices []string, def string) (string, error) {
	full := fmt.Sprintf("%s (%s)", label, strings.Join(choices, ", "))
	for {
		answer, err := p.String(full, def)
		if err != nil {
			return "", err
		}
		for _, c := range choices {
			if strings.EqualFold(c, answer) {
				return c, nil
			}
		}
		fmt.Fprintf(p.out, "Error: '%s' is not one of %s.\n", answer, strings.Join(choices, ", "))
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(p.out, "%s [%s]: ", question, hint)
		answer, err := p.readLine()
		if errors.Is(err, io.EOF) {
			return defaultYes, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Error: invalid input")
	}
}

// Secret asks for a credential. The current value is never shown, and a
// blank answer keeps it.
func (p *Prompter) Secret(label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, config.Mask)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	var (
		answer string
		err    error
	)
	if p.fd >= 0 {
		var raw []byte
		raw, err = term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		answer = strings.TrimSpace(string(raw))
	} else {
		answer, err = p.readLine()
		if errors.Is(err, io.EOF) {
			return current, nil
		}
		if err != nil {
			return "", err
		}
	}

	if answer == "" {
		return current, nil
	}
	return answer, nil
}
