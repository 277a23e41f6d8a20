package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Stream yields tokens one at a time. Recv returns io.EOF on clean
// completion and ErrStreamInterrupted when the connection drops after
// tokens were delivered.
type Stream interface {
	Recv() (string, error)
	Partial() []string
	Close() error
}

// tokenStream parses the newline-delimited token events emitted by
// text-generation-inference /generate_stream endpoints. Both plain JSON
// lines and "data:"-prefixed SSE lines are accepted. The final event
// carries generated_text, which marks clean completion; EOF before that
// marker counts as an interruption when tokens were already delivered.
type tokenStream struct {
	resp     *http.Response
	reader   *bufio.Reader
	partial  []string
	finished bool
}

func newTokenStream(resp *http.Response) *tokenStream {
	return &tokenStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}
}

type tokenEvent struct {
	Token struct {
		Text string `json:"text"`
	} `json:"token"`
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
}

func (s *tokenStream) Recv() (string, error) {
	for {
		line, err := s.reader.ReadString('\n')
		payload := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "data:"))

		if payload != "" && payload != "[DONE]" {
			var event tokenEvent
			if jsonErr := json.Unmarshal([]byte(payload), &event); jsonErr != nil {
				// Unparseable lines are skipped, matching lenient
				// consumption of mixed SSE/ndjson output.
				if err != nil {
					return "", s.terminal(err)
				}
				continue
			}
			if event.Error != "" {
				return "", s.terminal(fmt.Errorf("llm: server error: %s", event.Error))
			}
			if event.GeneratedText != nil {
				s.finished = true
			}
			if event.Token.Text != "" {
				s.partial = append(s.partial, event.Token.Text)
				return event.Token.Text, nil
			}
		}

		if payload == "[DONE]" {
			s.finished = true
			return "", io.EOF
		}
		if err != nil {
			if errors.Is(err, io.EOF) && s.finished {
				return "", io.EOF
			}
			return "", s.terminal(err)
		}
	}
}

// terminal classifies a read failure: a drop after delivered tokens is an
// interruption the caller can recover partial output from.
func (s *tokenStream) terminal(err error) error {
	if len(s.partial) > 0 && !s.finished {
		return fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}

// Partial returns the tokens received so far, in order.
func (s *tokenStream) Partial() []string {
	return s.partial
}

func (s *tokenStream) Close() error {
	return s.resp.Body.Close()
}
