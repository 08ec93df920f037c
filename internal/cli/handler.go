// Package cli provides an interactive command-line interface for a Bitcask
// store. It parses user commands and executes them against the store.
package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aetherkv/bitcask"
)

// Handler manages the command-line interface for the key-value store.
type Handler struct {
	store   *bitcask.Store
	scanner *bufio.Scanner
}

// NewHandler creates a new CLI handler over store.
func NewHandler(store *bitcask.Store) *Handler {
	return &Handler{
		store:   store,
		scanner: bufio.NewScanner(os.Stdin),
	}
}

// Run starts the interactive command loop, processing user input until
// an exit command is received or an error occurs.
func (h *Handler) Run() error {
	fmt.Println("bitcask - log-structured key-value store")
	fmt.Println("Commands: PUT <key> <value>, GET <key>, DELETE <key>, TRAVERSE, EMPTY, MERGE, EXIT")
	fmt.Print("> ")

	for h.scanner.Scan() {
		line := strings.TrimSpace(h.scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Print("> ")
			continue
		}

		command := strings.ToUpper(parts[0])

		switch command {
		case "PUT":
			h.handlePut(parts)
		case "GET":
			h.handleGet(parts)
		case "DELETE":
			h.handleDelete(parts)
		case "TRAVERSE":
			h.handleTraverse()
		case "EMPTY":
			fmt.Println(h.store.Empty())
		case "MERGE":
			h.handleMerge()
		case "EXIT", "QUIT":
			slog.Info("cli: shutdown requested by user")
			fmt.Println("Goodbye!")
			return nil
		default:
			slog.Warn("cli: unknown command received", "command", command)
			fmt.Printf("Unknown command: %s\n", command)
		}

		fmt.Print("> ")
	}

	if err := h.scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return nil
}

// handlePut processes PUT commands to store key-value pairs.
func (h *Handler) handlePut(parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: PUT <key> <value>")
		return
	}

	key := parts[1]
	value := strings.Join(parts[2:], " ")

	slog.Debug("cli: executing PUT command", "key", key, "value_size", len(value))

	result, err := h.store.Put([]byte(key), []byte(value))
	if err != nil {
		slog.Error("cli: PUT command failed", "key", key, "error", err)
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK (%s)\n", result)
}

// handleGet processes GET commands to retrieve values by key.
func (h *Handler) handleGet(parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: GET <key>")
		return
	}

	key := parts[1]
	slog.Debug("cli: executing GET command", "key", key)

	value, ok, err := h.store.Get([]byte(key))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Printf("%s\n", value)
}

// handleDelete processes DELETE commands to remove keys.
func (h *Handler) handleDelete(parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: DELETE <key>")
		return
	}

	key := parts[1]
	slog.Debug("cli: executing DELETE command", "key", key)

	existed, err := h.store.Del([]byte(key))
	if err != nil {
		slog.Error("cli: DELETE command failed", "key", key, "error", err)
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !existed {
		fmt.Println("(not found)")
		return
	}
	fmt.Println("OK")
}

// handleTraverse prints every live key/value pair.
func (h *Handler) handleTraverse() {
	count := 0
	err := h.store.Traverse(func(key, value []byte) bool {
		fmt.Printf("%s = %s\n", key, value)
		count++
		return true
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("(%d keys)\n", count)
}

// handleMerge triggers compaction.
func (h *Handler) handleMerge() {
	slog.Info("cli: merge requested")
	if err := h.store.Merge(); err != nil {
		slog.Error("cli: merge failed", "error", err)
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK")
}
