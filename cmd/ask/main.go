// Command ask is a small terminal client for the kompanion gateway.
// It posts one question to /v1/chat and prints the event stream as it
// arrives.
//
//	ask -skill kubernetes "list pods in monitoring"
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
)

type chatEvent struct {
	Status  string `json:"status,omitempty"`
	Message *struct {
		Content   string `json:"content"`
		Reasoning string `json:"reasoning,omitempty"`
	} `json:"message,omitempty"`
	Done bool `json:"done,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "gateway base URL")
	skill := flag.String("skill", "", "skill to answer with (server default when empty)")
	reasoning := flag.Bool("reasoning", false, "print the reasoning trace when present")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [-server URL] [-skill NAME] <question>")
		os.Exit(2)
	}

	if err := run(*server, *skill, query, *reasoning); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(server, skill, query string, showReasoning bool) error {
	body, err := json.Marshal(map[string]any{
		"skill": skill,
		"query": query,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(server+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	streaming := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var ev chatEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("bad event %q: %w", payload, err)
		}

		switch {
		case ev.Done:
			if streaming {
				// Incremental fragments already printed the answer.
				fmt.Println()
			} else if ev.Message != nil {
				fmt.Println(ev.Message.Content)
			}
			if showReasoning && ev.Message != nil && ev.Message.Reasoning != "" {
				fmt.Fprintf(os.Stderr, "\n--- reasoning ---\n%s\n", ev.Message.Reasoning)
			}
		case ev.Message != nil:
			streaming = true
			fmt.Print(ev.Message.Content)
		case ev.Status != "":
			fmt.Fprintln(os.Stderr, "*", ev.Status)
		}
	}
	return scanner.Err()
}
