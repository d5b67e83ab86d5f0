package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// sendCmd is a terminal SSE client: it opens a sendWithStream
// connection against a running serve instance and prints tokens as
// they arrive, for manually exercising the pipeline end to end.
func sendCmd() *cobra.Command {
	var (
		serverURL string
		convID    string
		provider  string
		model     string
		owner     string
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and stream the assistant's reply to the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if convID == "" {
				convID = "new"
			}
			return runSend(cmd.Context(), sendOptions{
				serverURL: strings.TrimRight(serverURL, "/"),
				convID:    convID,
				provider:  provider,
				model:     model,
				owner:     owner,
				content:   args[0],
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of a running streamchat serve instance")
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id to continue, empty starts a new one")
	cmd.Flags().StringVar(&provider, "provider", "openai", "provider name: openai or anthropic")
	cmd.Flags().StringVar(&model, "model", "", "model id, empty uses the conversation or system default")
	cmd.Flags().StringVar(&owner, "owner", "cli-user", "X-User-ID to send with the request")

	return cmd
}

type sendOptions struct {
	serverURL string
	convID    string
	provider  string
	model     string
	owner     string
	content   string
}

func runSend(ctx context.Context, opts sendOptions) error {
	body, err := json.Marshal(map[string]string{
		"content":  opts.content,
		"provider": opts.provider,
		"model":    opts.model,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/conversations/%s/messages", opts.serverURL, opts.convID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", opts.owner)
	req.Header.Set("Accept", "text/event-stream")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	start := time.Now()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch domain.EventType(ev.Type) {
		case domain.EventAgentChunk:
			fmt.Print(ev.Chunk)
		case domain.EventMessageComplete:
			status, errReason := "", ""
			if ev.Message != nil {
				status = ev.Message.Status
				errReason = ev.Message.ErrorReason
			}
			fmt.Printf("\n\n[%s in %s]\n", status, time.Since(start).Round(time.Millisecond))
			if errReason != "" {
				fmt.Printf("error: %s\n", errReason)
			}
		}
	}
	return scanner.Err()
}

// wireEvent mirrors the event wire schema documented for
// listenToMessageChunkStream/sendWithStream: agentChunk carries
// chunk/convId, messageStart/messageComplete carry a nested message.
type wireEvent struct {
	Type    string `json:"type"`
	Chunk   string `json:"chunk"`
	Message *struct {
		Status      string `json:"status"`
		ErrorReason string `json:"errorReason"`
	} `json:"message"`
}
