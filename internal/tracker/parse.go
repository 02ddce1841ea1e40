package tracker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const maxLineSize = 1 << 20

// FeedLine is one decoded NDJSON line together with its fingerprint.
type FeedLine struct {
	Raw         []byte
	Fingerprint string
	Event       RawEvent
}

type FeedResult struct {
	Lines     []FeedLine
	Total     int
	Malformed int
}

// ParseFeed reads newline-delimited tracker JSON. Blank lines are ignored;
// lines that fail to decode or exceed maxLineSize are counted in Malformed.
func ParseFeed(r io.Reader) (*FeedResult, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	res := &FeedResult{}
	seen := make(map[string]int)

	for {
		line, oversize, err := readLine(br)
		if err != nil && err != io.EOF {
			return res, fmt.Errorf("read feed: %w", err)
		}
		if oversize {
			res.Total++
			res.Malformed++
		} else {
			res.add(bytes.TrimSpace(line), seen)
		}
		if err == io.EOF {
			return res, nil
		}
	}
}

func (r *FeedResult) add(line []byte, seen map[string]int) {
	if len(line) == 0 {
		return
	}
	r.Total++

	var raw RawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		r.Malformed++
		return
	}

	key := string(line)
	occurrence := seen[key]
	seen[key] = occurrence + 1

	buf := make([]byte, len(line))
	copy(buf, line)
	r.Lines = append(r.Lines, FeedLine{
		Raw:         buf,
		Fingerprint: Fingerprint(buf, occurrence),
		Event:       raw,
	})
}

// readLine returns the next line, newline included. A line longer than
// maxLineSize is still consumed up to its newline but comes back empty with
// oversize set.
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	oversize := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversize {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > maxLineSize {
				oversize, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, oversize, err
	}
}

// Events flattens the decoded lines. Lines that fail Validate are skipped,
// the same rule the worker applies before storing.
func (r *FeedResult) Events(source string) []Event {
	events := make([]Event, 0, len(r.Lines))
	for _, l := range r.Lines {
		if Validate(&l.Event) != nil {
			continue
		}
		e := Flatten(l.Event)
		e.Fingerprint = l.Fingerprint
		e.Source = source
		events = append(events, e)
	}
	return events
}
