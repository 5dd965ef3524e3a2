// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/ollama"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/store"
)

// SendFailedMessage is the fixed user-facing message for any send failure.
// The UI shows this verbatim; the underlying cause only goes to the log.
const SendFailedMessage = "Error fetching response. Please try again."

// ErrEmptyInput is returned for empty or whitespace-only input. No network
// call is made and history is not touched.
var ErrEmptyInput = errors.New("empty input")

// SendError wraps a send failure. Error() returns the fixed user-facing
// message; the cause is available via Unwrap.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string { return SendFailedMessage }

func (e *SendError) Unwrap() error { return e.Cause }

// readBufferSize is the chunk size for draining the streamed response.
const readBufferSize = 4096

// Send runs one chat turn for sessionID:
//
//  1. The user message is appended to the store before anything is sent,
//     so it survives a failed request.
//  2. The session's full trimmed history goes to the server, which holds no
//     conversation state of its own.
//  3. Response fragments invoke onFragment strictly in arrival order while
//     accumulating.
//  4. A clean end of stream appends the assistant message and returns the
//     full text. Any failure discards the partial buffer and returns a
//     *SendError; the user message stays in history.
func (c *Client) Send(ctx context.Context, sessionID, userText string, onFragment func(string)) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyInput
	}

	if err := c.store.Append(sessionID, store.NewUserMessage(userText)); err != nil {
		return "", &SendError{Cause: err}
	}

	history := c.store.History(sessionID)
	messages := make([]ollama.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, ollama.Message{Role: msg.Role, Content: msg.Content})
	}

	payload, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
	if err != nil {
		return "", &SendError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", &SendError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("SEND_FAILED | session=%s error=%v", sessionID, err)
		return "", &SendError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("SEND_FAILED | session=%s status=%d", sessionID, resp.StatusCode)
		return "", &SendError{Cause: fmt.Errorf("chat: status %d", resp.StatusCode)}
	}

	var full strings.Builder
	var carry []byte
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			// A read can end mid-rune; hold the incomplete tail back so
			// fragments handed out are always whole UTF-8.
			cut := completeRuneBoundary(carry)
			if cut > 0 {
				fragment := string(carry[:cut])
				carry = append(carry[:0], carry[cut:]...)
				full.WriteString(fragment)
				if onFragment != nil {
					onFragment(fragment)
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			// Mid-stream drop: the partial buffer is discarded, the user
			// message stays so a resend carries it.
			log.Printf("SEND_INTERRUPTED | session=%s error=%v", sessionID, rerr)
			return "", &SendError{Cause: rerr}
		}
	}
	if len(carry) > 0 {
		// Stream ended inside a rune; emit the leftover bytes as-is.
		fragment := string(carry)
		full.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}

	text := full.String()
	if err := c.store.Append(sessionID, store.NewAssistantMessage(text)); err != nil {
		return "", &SendError{Cause: err}
	}
	return text, nil
}

// completeRuneBoundary returns the length of the longest prefix of b that
// ends on a UTF-8 rune boundary. Bytes past the cut are the start of a rune
// whose remaining bytes have not arrived yet.
func completeRuneBoundary(b []byte) int {
	n := len(b)
	// The start byte of an in-flight rune sits at most UTFMax-1 bytes back.
	i := n - 1
	for i >= 0 && i >= n-utf8.UTFMax && !utf8.RuneStart(b[i]) {
		i--
	}
	if i < 0 || i < n-utf8.UTFMax {
		// No start byte in range: not a split rune, pass everything through.
		return n
	}
	if utf8.FullRune(b[i:]) {
		return n
	}
	return i
}
