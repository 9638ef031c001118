package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/battlearena/combat-engine/internal/dispatcher"
	"github.com/battlearena/combat-engine/internal/handlers"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/google/uuid"
)

// maxLineBytes bounds one request line.
const maxLineBytes = 1 << 20

// request is one line of input. Args may hold strings or any JSON value;
// non-string values are passed on as their JSON text.
type request struct {
	ID      string            `json:"id"`
	Command string            `json:"command"`
	Args    []json.RawMessage `json:"args"`
}

type response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// serve reads one JSON request per line and writes one JSON response per
// line, in order. Blank lines are skipped.
func serve(ctx context.Context, in io.Reader, out io.Writer, d *dispatcher.Dispatcher, logger *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			resp := handleLine(ctx, d, line)
			if !resp.OK {
				logger.Debug("Command failed", "id", resp.ID, "kind", resp.Kind, "error", resp.Error)
			}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

func handleLine(ctx context.Context, d *dispatcher.Dispatcher, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{OK: false, Error: fmt.Sprintf("malformed request: %v", err), Kind: "request"}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	args := make([]string, len(req.Args))
	for i, raw := range req.Args {
		args[i] = argString(raw)
	}

	result, err := d.Dispatch(ctx, dispatcher.Event{
		ID:      req.ID,
		Command: req.Command,
		Args:    args,
	})
	if err != nil {
		return response{ID: req.ID, Error: err.Error(), Kind: errorKind(err)}
	}
	return response{ID: req.ID, OK: true, Result: result}
}

// argString unwraps JSON strings and keeps any other value as JSON text.
func argString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// errorKind classifies an error for clients.
func errorKind(err error) string {
	var se *core.SimulationError
	switch {
	case core.IsValidationError(err):
		return "validation"
	case errors.As(err, &se):
		return "simulation"
	case errors.Is(err, core.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, core.ErrMatchExists):
		return "match_exists"
	case errors.Is(err, core.ErrMatchEnded):
		return "match_ended"
	case errors.Is(err, core.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, core.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, core.ErrNoMovesLeft):
		return "no_moves_left"
	case errors.Is(err, handlers.ErrNoHistory):
		return "unsupported"
	case errors.Is(err, dispatcher.ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}
