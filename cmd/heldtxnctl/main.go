// Command heldtxnctl is an interactive client for the held-transaction
// daemon: a thin HTTP client wrapped in a line-oriented shell, using
// chzyer/readline for history and line editing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

const clientTimeout = 10 * time.Second

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: clientTimeout}}
}

func (c *client) do(method, path string, txnID string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if txnID != "" {
		req.Header.Set("X-Transaction-ID", txnID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decoding response: %w (raw: %s)", err, raw)
		}
	}
	return resp.StatusCode, parsed, nil
}

func printResult(status int, body map[string]any, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	pretty, _ := json.MarshalIndent(body, "", "  ")
	fmt.Printf("HTTP %d\n%s\n", status, pretty)
}

func (c *client) createTransaction(timeoutSeconds *int) {
	body := map[string]any{
		"data": map[string]any{
			"type":       "transactions",
			"attributes": map[string]any{},
		},
	}
	if timeoutSeconds != nil {
		body["data"].(map[string]any)["attributes"].(map[string]any)["timeout_seconds"] = *timeoutSeconds
	}
	status, resp, err := c.do(http.MethodPost, "/transactions", "", body)
	printResult(status, resp, err)
}

func (c *client) showTransaction(id string) {
	status, resp, err := c.do(http.MethodGet, "/transactions/"+id, "", nil)
	printResult(status, resp, err)
}

func (c *client) listTransactions() {
	status, resp, err := c.do(http.MethodGet, "/transactions", "", nil)
	printResult(status, resp, err)
}

func (c *client) updateTransaction(id, state string) {
	body := map[string]any{
		"data": map[string]any{
			"type": "transactions",
			"id":   id,
			"attributes": map[string]any{
				"state": state,
			},
		},
	}
	status, resp, err := c.do(http.MethodPatch, "/transactions/"+id, "", body)
	printResult(status, resp, err)
}

func (c *client) createRecord(name, txnID string) {
	status, resp, err := c.do(http.MethodPost, "/records", txnID, map[string]any{"name": name})
	printResult(status, resp, err)
}

func (c *client) listRecords(txnID string) {
	status, resp, err := c.do(http.MethodGet, "/records", txnID, nil)
	printResult(status, resp, err)
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  create [timeout_seconds]")
	fmt.Println("  show <id>")
	fmt.Println("  list")
	fmt.Println("  commit <id>")
	fmt.Println("  rollback <id>")
	fmt.Println("  put <name> [txn_id]")
	fmt.Println("  records [txn_id]")
	fmt.Println("  help")
	fmt.Println("  exit / quit")
}

func dispatch(c *client, args []string) (quit bool) {
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "create":
		var timeout *int
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Printf("invalid timeout_seconds %q\n", args[1])
				return false
			}
			timeout = &n
		}
		c.createTransaction(timeout)
	case "show":
		if len(args) < 2 {
			fmt.Println("show requires an id")
			return false
		}
		c.showTransaction(args[1])
	case "list":
		c.listTransactions()
	case "commit":
		if len(args) < 2 {
			fmt.Println("commit requires an id")
			return false
		}
		c.updateTransaction(args[1], "committed")
	case "rollback":
		if len(args) < 2 {
			fmt.Println("rollback requires an id")
			return false
		}
		c.updateTransaction(args[1], "rolled_back")
	case "put":
		if len(args) < 2 {
			fmt.Println("put requires a name")
			return false
		}
		txnID := ""
		if len(args) > 2 {
			txnID = args[2]
		}
		c.createRecord(args[1], txnID)
	case "records":
		txnID := ""
		if len(args) > 1 {
			txnID = args[1]
		}
		c.listRecords(txnID)
	case "help":
		printHelp()
	case "exit", "quit":
		fmt.Println("bye")
		return true
	default:
		fmt.Printf("unknown command %q, type 'help'\n", args[0])
	}
	return false
}

func shellLoop(c *client) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[32mheldtxnctl»\033[0m ",
		HistoryFile:       "/tmp/heldtxnctl_history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "^D",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start shell: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	printHelp()
	for {
		line, err := l.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if dispatch(c, strings.Fields(line)) {
			return
		}
	}
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "address of the held-transaction daemon")
	flag.Parse()

	c := newClient(*addr)

	args := flag.Args()
	if len(args) == 0 {
		shellLoop(c)
		return
	}
	dispatch(c, args)
}
