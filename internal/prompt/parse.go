// Package prompt is the terminal entry UI: it reads one line per prompt and
// turns it into an entry, a skip or a session command.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/recorder"
)

// Action is what a parsed line asks for.
type Action int

const (
	ActionEntry Action = iota
	ActionSkip
	ActionSnooze
	ActionStart
	ActionStop
	ActionQuiet
	ActionInfo
	ActionHelp
	ActionQuit
)

// Command is a parsed input line.
type Command struct {
	Action Action
	Entry  recorder.Entry
	Quiet  bool
}

// Parse reads one line of input.
//
//	wrote the parser #work #go | next: tests | mood: 4 | excuse: none
//
// An empty line skips the interval and a leading '/' starts a command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Action: ActionSkip}, nil
	}
	if strings.HasPrefix(line, "/") {
		return parseCommand(line)
	}
	entry, err := parseEntry(line)
	if err != nil {
		return Command{}, err
	}
	return Command{Action: ActionEntry, Entry: entry}, nil
}

func parseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	name, args := fields[0], fields[1:]

	switch name {
	case "/skip":
		return Command{Action: ActionSkip}, nil
	case "/snooze":
		return Command{Action: ActionSnooze}, nil
	case "/start":
		return Command{Action: ActionStart}, nil
	case "/stop":
		return Command{Action: ActionStop}, nil
	case "/info", "/status":
		return Command{Action: ActionInfo}, nil
	case "/help", "/?":
		return Command{Action: ActionHelp}, nil
	case "/quit", "/exit":
		return Command{Action: ActionQuit}, nil
	case "/quiet":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: usage: /quiet on|off", apperrors.ErrInvalidArgument)
		}
		switch args[0] {
		case "on":
			return Command{Action: ActionQuiet, Quiet: true}, nil
		case "off":
			return Command{Action: ActionQuiet, Quiet: false}, nil
		}
		return Command{}, fmt.Errorf("%w: usage: /quiet on|off", apperrors.ErrInvalidArgument)
	}
	return Command{}, fmt.Errorf("%w: unknown command %s (try /help)", apperrors.ErrInvalidArgument, name)
}

func parseEntry(line string) (recorder.Entry, error) {
	parts := strings.Split(line, "|")

	var entry recorder.Entry
	var words []string
	for _, word := range strings.Fields(parts[0]) {
		if len(word) > 1 && strings.HasPrefix(word, "#") {
			entry.Tags = append(entry.Tags, word[1:])
			continue
		}
		words = append(words, word)
	}
	entry.Description = strings.Join(words, " ")

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return entry, fmt.Errorf("%w: expected key: value after '|', got %q", apperrors.ErrInvalidArgument, strings.TrimSpace(part))
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "next":
			entry.PlannedNext = value
		case "excuse":
			entry.Excuse = value
		case "mood":
			mood, err := strconv.Atoi(value)
			if err != nil {
				return entry, fmt.Errorf("%w: mood must be a number from 1 to 5, got %q", apperrors.ErrInvalidArgument, value)
			}
			entry.Mood = &mood
		case "tags":
			for _, tag := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
				entry.Tags = append(entry.Tags, tag)
			}
		default:
			return entry, fmt.Errorf("%w: unknown field %q", apperrors.ErrInvalidArgument, strings.TrimSpace(key))
		}
	}

	return entry.Normalize()
}
