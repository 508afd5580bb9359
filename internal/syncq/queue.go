package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Command is a write the CLI could not deliver. It is replayed with the same
// idempotency key so the server applies it at most once.
type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

type Failure struct {
	Command Command `json:"command"`
	Err     string  `json:"error"`
}

type Result struct {
	Sent    int
	Dropped []Failure
	Pending int
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".stk")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay sends queued commands in order. When send fails with a retryable
// error that command and everything after it stay queued; any other failure
// drops the command and moves on.
func Replay(ctx context.Context, send func(context.Context, Command) error, retryable func(error) bool) (Result, error) {
	commands, err := Load()
	if err != nil {
		return Result{}, err
	}
	var res Result
	i := 0
	for ; i < len(commands); i++ {
		if ctx.Err() != nil {
			break
		}
		err := send(ctx, commands[i])
		if err == nil {
			res.Sent++
			continue
		}
		if retryable(err) {
			break
		}
		res.Dropped = append(res.Dropped, Failure{Command: commands[i], Err: err.Error()})
	}
	rest := append([]Command{}, commands[i:]...)
	res.Pending = len(rest)
	if err := Save(rest); err != nil {
		return res, err
	}
	return res, nil
}
