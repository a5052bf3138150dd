// Command runner is the workflow-side client of the broker. It runs inside a
// CI job, proves the job's identity with the platform-issued OIDC token, and
// speaks the credential exchange protocol: token, report, revoke.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/fetchclient"
)

const defaultAudience = "github-bot.fos.gg"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "token", "fetch-token":
		os.Exit(runToken(args))
	case "report":
		os.Exit(runReport(args))
	case "revoke":
		os.Exit(runRevoke(args))
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`runner - Workflow-side client for the execution broker

Usage:
  runner <command> [flags]

Commands:
  token     Exchange the job's OIDC token for a scoped credential
  report    Report the execution result back to the broker
  revoke    Revoke a previously minted credential
  help      Show this help message
`)
}

// assertionToken requests an OIDC token from the CI platform using the
// request URL and bearer token it injects into the job environment.
func assertionToken(ctx context.Context, client *fetchclient.Client, audience string) (string, error) {
	requestURL := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_URL")
	requestToken := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN")
	if requestURL == "" || requestToken == "" {
		return "", fmt.Errorf("ACTIONS_ID_TOKEN_REQUEST_URL and ACTIONS_ID_TOKEN_REQUEST_TOKEN must be set (does the job have id-token: write?)")
	}

	sep := "?"
	if strings.Contains(requestURL, "?") {
		sep = "&"
	}
	var out struct {
		Value string `json:"value"`
	}
	err := client.DoJSON(ctx, "GET", requestURL+sep+"audience="+audience, map[string]string{
		"Authorization": "Bearer " + requestToken,
	}, nil, &out)
	if err != nil {
		return "", fmt.Errorf("OIDC token request: %w", err)
	}
	if out.Value == "" {
		return "", fmt.Errorf("OIDC token response has no value")
	}
	return out.Value, nil
}

func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	broker := fs.String("broker", "", "Broker base URL")
	id := fs.String("id", "", "Execution id")
	audience := fs.String("audience", defaultAudience, "OIDC audience")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *broker == "" || *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: runner token --broker URL --id EXECUTION_ID [--audience AUD]")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client := fetchclient.New(0)

	assertion, err := assertionToken(ctx, client, *audience)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to obtain identity assertion: %v\n", err)
		return 1
	}

	var credential json.RawMessage
	err = client.DoJSON(ctx, "POST", strings.TrimRight(*broker, "/")+"/credential/"+*id, map[string]string{
		"Authorization": "Bearer " + assertion,
	}, nil, &credential)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Credential exchange failed: %v\n", err)
		return 1
	}

	// The full response (token, expiry, execution context) goes to stdout
	// for the workflow to pick apart with jq.
	fmt.Println(string(credential))
	return 0
}

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	broker := fs.String("broker", "", "Broker base URL")
	id := fs.String("id", "", "Execution id")
	token := fs.String("token", "", "Minted credential from the exchange")
	payload := fs.String("payload", "", "Result payload as JSON, or @path to read a file, or - for stdin")
	audience := fs.String("audience", defaultAudience, "OIDC audience")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *broker == "" || *id == "" || *token == "" || *payload == "" {
		fmt.Fprintln(os.Stderr, "Usage: runner report --broker URL --id EXECUTION_ID --token CREDENTIAL --payload JSON")
		return 1
	}

	body, err := readPayload(*payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}
	if !json.Valid(body) {
		fmt.Fprintln(os.Stderr, "Payload must be valid JSON")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client := fetchclient.New(0)

	assertion, err := assertionToken(ctx, client, *audience)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to obtain identity assertion: %v\n", err)
		return 1
	}

	var out json.RawMessage
	err = client.DoJSON(ctx, "POST", strings.TrimRight(*broker, "/")+"/report/"+*id, map[string]string{
		"Authorization":       "Bearer " + assertion,
		"X-Minted-Credential": *token,
		"Content-Type":        "application/json",
	}, body, &out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report failed: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func runRevoke(args []string) int {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	broker := fs.String("broker", "", "Broker base URL")
	id := fs.String("id", "", "Execution id")
	token := fs.String("token", "", "Minted credential from the exchange")
	audience := fs.String("audience", defaultAudience, "OIDC audience")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *broker == "" || *id == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "Usage: runner revoke --broker URL --id EXECUTION_ID --token CREDENTIAL")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client := fetchclient.New(0)

	assertion, err := assertionToken(ctx, client, *audience)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to obtain identity assertion: %v\n", err)
		return 1
	}

	var out json.RawMessage
	err = client.DoJSON(ctx, "POST", strings.TrimRight(*broker, "/")+"/credential/"+*id+"/revoke", map[string]string{
		"Authorization":       "Bearer " + assertion,
		"X-Minted-Credential": *token,
	}, nil, &out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Revoke failed: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}
