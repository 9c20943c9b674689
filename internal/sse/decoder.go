// Package sse consumes a Server-Sent-Events response body as a pull-based
// sequence of content deltas. One decoder handles one response; it is not
// restartable.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// ErrInterrupted marks a stream that ended before the terminal sentinel,
// either through an in-band error payload or transport truncation. Partial
// content already delivered remains valid.
var ErrInterrupted = errors.New("stream interrupted")

// InterruptedError carries the reason a stream broke off.
type InterruptedError struct {
	Reason string
}

func (e *InterruptedError) Error() string {
	if e.Reason == "" {
		return "stream interrupted"
	}
	return "stream interrupted: " + e.Reason
}

func (e *InterruptedError) Is(target error) bool { return target == ErrInterrupted }

// Delta is one increment of assistant output. First is set exactly once, on
// the first non-empty delta, so a caller can retire its waiting indicator
// without tracking state of its own.
type Delta struct {
	Text  string
	First bool
}

// Decoder yields deltas from an SSE-framed byte stream. Partial lines at
// chunk boundaries are buffered by the underlying reader, so the delta
// sequence is invariant to how bytes arrive.
type Decoder struct {
	r        *bufio.Reader
	sawDelta bool
	finished bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next content delta. It returns io.EOF after the terminal
// sentinel and an *InterruptedError if the stream carries an error payload or
// ends without the sentinel.
func (d *Decoder) Next() (Delta, error) {
	if d.finished {
		return Delta{}, io.EOF
	}
	for {
		line, err := d.r.ReadString('\n')
		if text, fin, perr := d.consumeLine(line); perr != nil || fin || text != "" {
			if perr != nil || fin {
				d.finished = true
			}
			if perr != nil {
				return Delta{}, perr
			}
			if fin {
				return Delta{}, io.EOF
			}
			first := !d.sawDelta
			d.sawDelta = true
			return Delta{Text: text, First: first}, nil
		}
		if err != nil {
			d.finished = true
			if err == io.EOF {
				return Delta{}, &InterruptedError{Reason: "stream ended before terminal event"}
			}
			return Delta{}, &InterruptedError{Reason: err.Error()}
		}
	}
}

// consumeLine interprets one SSE line. Blank lines, comments, and lines
// without the data prefix are ignored; so are data lines that do not decode,
// since a broken frame must not take down the whole stream.
func (d *Decoder) consumeLine(line string) (text string, finished bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	if payload == doneSentinel {
		return "", true, nil
	}
	var event struct {
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	if json.Unmarshal([]byte(payload), &event) != nil {
		return "", false, nil
	}
	if event.Error != "" {
		return "", false, &InterruptedError{Reason: event.Error}
	}
	return event.Content, false, nil
}
