package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// GenerateStream opens an SSE completion stream and forwards delta fragments
// to yield as they arrive, with no buffering beyond line framing. It returns
// the accumulated text either way. When the upstream fails after content was
// already delivered, the designated error fragment is yielded so the consumer
// sees the break in-band; when it fails before the first fragment, nothing is
// yielded and the bare error is the whole story, leaving the caller free to
// answer with a proper status. A yield failure (client gone) just ends the
// stream; the text generated so far still counts.
func (c *HTTPClient) GenerateStream(ctx context.Context, msgs []Message, p Params, yield func(fragment string) error) (string, error) {
	stream := true
	req := chatCompletionRequest{
		Model:     p.Model,
		Messages:  msgs,
		MaxTokens: p.MaxTokens,
		Stream:    &stream,
	}
	if p.Temperature > 0 {
		req.Temperature = &p.Temperature
	}

	var accumulated strings.Builder

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		if line == "data: [DONE]" {
			return accumulated.String(), nil
		}

		var chunk chatCompletionResponse
		if err := json.Unmarshal([]byte(line[6:]), &chunk); err != nil {
			c.log.Warn("skipping malformed stream chunk", zap.Error(err))
			continue
		}

		for _, choice := range chunk.Choices {
			fragment := choice.Delta.Content
			if fragment == "" {
				continue
			}
			accumulated.WriteString(fragment)
			if err := yield(fragment); err != nil {
				c.log.Debug("stream consumer stopped", zap.Error(err))
				return accumulated.String(), nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if accumulated.Len() > 0 {
			_ = yield(ErrorFragment())
		}
		return accumulated.String(), fmt.Errorf("%w: reading stream: %v", ErrUpstream, err)
	}

	// Upstream closed without the [DONE] sentinel. Treat as a truncated
	// stream so the caller knows the transcript may be incomplete.
	if accumulated.Len() > 0 {
		_ = yield(ErrorFragment())
	}
	return accumulated.String(), fmt.Errorf("%w: stream ended without completion sentinel", ErrUpstream)
}
