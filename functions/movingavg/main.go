// movingavg is a subprocess handler. It reads a host metrics sample from stdin, keeps an hour of
// samples in a state file and prints the moving averages as JSON.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type request struct {
	Input   Sample `json:"input"`
	Context struct {
		OutputKey string `json:"output_key"`
	} `json:"context"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	if req.Input.Timestamp.IsZero() {
		req.Input.Timestamp = time.Now().UTC()
	}

	path := statePath(req.Context.OutputKey)
	history, err := loadHistory(path)
	if err != nil {
		return err
	}
	history.Add(req.Input)
	if err := saveHistory(path, history); err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(history.Averages(req.Input.Timestamp))
}

func statePath(outputKey string) string {
	if p := os.Getenv("MOVINGAVG_STATE"); p != "" {
		return p
	}
	if outputKey == "" {
		outputKey = "default"
	}
	return filepath.Join(os.TempDir(), "movingavg-"+filepath.Base(outputKey)+".json")
}

func loadHistory(path string) (*History, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var h History
	if err := json.Unmarshal(b, &h); err != nil {
		// a corrupt state file only costs the history
		return &History{}, nil
	}
	return &h, nil
}

func saveHistory(path string, h *History) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, path)
}
