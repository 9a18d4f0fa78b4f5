package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

type frame struct {
	Event string
	ID    string
	HasID bool
	Data  string
}

// readSSE parses text/event-stream frames from r until EOF, which is reported
// as a nil error. A frame with no data lines is dropped but its id still counts.
func readSSE(r io.Reader, onFrame func(frame) error) error {
	br := bufio.NewReader(r)
	var (
		cur       frame
		dataLines []string
	)

	flush := func() error {
		f := cur
		cur = frame{}
		if len(dataLines) == 0 && !f.HasID {
			return nil
		}
		f.Data = strings.Join(dataLines, "\n")
		dataLines = nil
		if onFrame == nil {
			return nil
		}
		return onFrame(f)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line != "" {
					parseField(strings.TrimRight(line, "\r\n"), &cur, &dataLines)
				}
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line ends event.
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		parseField(line, &cur, &dataLines)
	}
}

func parseField(line string, cur *frame, dataLines *[]string) {
	// Comment.
	if strings.HasPrefix(line, ":") {
		return
	}
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "event":
		cur.Event = strings.TrimSpace(value)
	case "id":
		cur.ID = strings.TrimSpace(value)
		cur.HasID = true
	case "data":
		*dataLines = append(*dataLines, value)
	}
}
