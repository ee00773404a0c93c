// Package pump turns a child process output stream into prefixed log lines.
package pump

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"time"
	"unicode"
)

const readBufferSize = 64 * 1024

// Channel names the stream a line came from.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

// Prefix returns the log tag for the channel.
func (c Channel) Prefix() string {
	if c == Stderr {
		return "[ERR]"
	}

	return "[OUT]"
}

func (c Channel) String() string {
	if c == Stderr {
		return "stderr"
	}

	return "stdout"
}

// Line is one delivered output line.
type Line struct {
	Channel Channel
	// Raw is the line without its terminator or trailing whitespace.
	Raw string
	// Time is when the line was read.
	Time time.Time
}

// Text renders the line as it appears in a sink, e.g. "[OUT] hello".
func (l Line) Text() string {
	return l.Channel.Prefix() + " " + l.Raw
}

// Run reads r until EOF, calling emit once per line in stream order. A final
// line without a terminator is still delivered. Lines of any length are
// delivered whole. Run returns nil at EOF or when the pipe was closed by the
// process reaper, and the read error otherwise.
func Run(r io.Reader, ch Channel, emit func(Line)) error {
	reader := bufio.NewReaderSize(r, readBufferSize)

	for {
		chunk, err := reader.ReadString('\n')
		if chunk != "" {
			emit(Line{
				Channel: ch,
				Raw:     clean(chunk),
				Time:    time.Now(),
			})
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}

			return err
		}
	}
}

func clean(chunk string) string {
	return strings.TrimRightFunc(strings.ToValidUTF8(chunk, "�"), unicode.IsSpace)
}
