// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Interactive reports whether the process can run interactive prompts:
// stdin and stdout are terminals and TERM is not dumb.
func Interactive() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// Prompter runs confirmation and selection prompts on top of huh forms.
//
// Without a terminal every confirmation answers no and every selection
// fails, so scripted runs never hang waiting for input. AssumeYes flips
// confirmations (not selections) to yes for non-interactive automation.
type Prompter struct {
	AssumeYes bool

	interactive bool
}

// NewPrompter creates a Prompter bound to the current terminal state.
func NewPrompter(assumeYes bool) *Prompter {
	return &Prompter{AssumeYes: assumeYes, interactive: Interactive()}
}

// Confirm asks a yes/no question. Ctrl-C counts as no.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	if p.AssumeYes {
		return true, nil
	}
	if !p.interactive {
		return false, nil
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return ok, nil
}

// Select asks the user to pick one of the labeled options and returns its
// index. Fails without a terminal; there is no safe default to assume.
func (p *Prompter) Select(title string, labels []string) (int, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("select prompt: no options")
	}
	if !p.interactive {
		return 0, fmt.Errorf("%q needs a terminal to disambiguate %d options", title, len(labels))
	}
	options := make([]huh.Option[int], len(labels))
	for i, label := range labels {
		options[i] = huh.NewOption(label, i)
	}
	var idx int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title(title).
			Options(options...).
			Value(&idx),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return 0, fmt.Errorf("selection aborted")
		}
		return 0, fmt.Errorf("select prompt: %w", err)
	}
	return idx, nil
}
