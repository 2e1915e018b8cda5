package history

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Log record keywords.
const (
	kwCommit  = "commit"
	kwAuthor  = "author"
	kwDate    = "date"
	kwMessage = "message"
	kwChange  = "change"
	kwDelete  = "delete"
	kwBase    = "base"
)

// maxLogLineBytes bounds a single log line. Paths and messages fit
// comfortably; anything larger is rejected as malformed input.
const maxLogLineBytes = 1 << 20

// ParseLog reads a commit log in the replan text format and builds a
// Graph. The format is line oriented, oldest commit first:
//
//	base <id>
//
//	commit <id> [<parent-id> ...]
//	author <name> [<email>]
//	date <RFC3339>
//	message <text>
//	change <path> <content-hash>
//	delete <path>
//
// Blank lines separate records. The optional base line designates the
// root boundary every out-of-range parent must equal.
//
// Syntax problems return ErrParse with the offending line number; graph
// invariant violations surface as ErrMalformedHistory or
// ErrMergeUnsupported from NewGraph.
func ParseLog(r io.Reader) (*Graph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLogLineBytes)

	parser := logParser{}

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		err := parser.consume(lineNo, scanner.Text())
		if err != nil {
			return nil, err
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read commit log: %w", err)
	}

	parser.flush()

	return NewGraph(parser.commits, parser.base)
}

// logParser accumulates commits while scanning the log line by line.
type logParser struct {
	commits []*Commit
	current *Commit
	base    ID
}

func (p *logParser) consume(lineNo int, raw string) error {
	line := strings.TrimRight(raw, " \t")
	if strings.TrimSpace(line) == "" {
		p.flush()

		return nil
	}

	keyword, rest, _ := strings.Cut(line, " ")

	switch keyword {
	case kwBase:
		return p.consumeBase(lineNo, rest)
	case kwCommit:
		return p.consumeCommit(lineNo, rest)
	case kwAuthor, kwDate, kwMessage, kwChange, kwDelete:
		return p.consumeField(lineNo, keyword, rest)
	default:
		return parseErrf(lineNo, "unknown keyword %q", keyword)
	}
}

func (p *logParser) consumeBase(lineNo int, rest string) error {
	if p.current != nil || len(p.commits) > 0 {
		return parseErrf(lineNo, "base must precede the first commit")
	}

	id := strings.TrimSpace(rest)
	if id == "" {
		return parseErrf(lineNo, "base requires an identifier")
	}

	p.base = ID(id)

	return nil
}

func (p *logParser) consumeCommit(lineNo int, rest string) error {
	p.flush()

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return parseErrf(lineNo, "commit requires an identifier")
	}

	commit := &Commit{ID: ID(fields[0])}
	for _, parent := range fields[1:] {
		commit.Parents = append(commit.Parents, ID(parent))
	}

	p.current = commit

	return nil
}

func (p *logParser) consumeField(lineNo int, keyword, rest string) error {
	if p.current == nil {
		return parseErrf(lineNo, "%s outside of a commit record", keyword)
	}

	switch keyword {
	case kwAuthor:
		name, email := splitAuthor(rest)
		p.current.Author = Signature{Name: name, Email: email}
	case kwDate:
		when, err := time.Parse(time.RFC3339, strings.TrimSpace(rest))
		if err != nil {
			return parseErrf(lineNo, "bad date %q", strings.TrimSpace(rest))
		}

		p.current.When = when
	case kwMessage:
		if p.current.Message != "" {
			p.current.Message += "\n"
		}

		p.current.Message += rest
	case kwChange:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return parseErrf(lineNo, "change requires <path> <hash>")
		}

		p.current.Changes = append(p.current.Changes, Change{Action: Write, Path: fields[0], Hash: fields[1]})
	case kwDelete:
		path := strings.TrimSpace(rest)
		if path == "" {
			return parseErrf(lineNo, "delete requires a path")
		}

		p.current.Changes = append(p.current.Changes, Change{Action: Delete, Path: path})
	}

	return nil
}

// flush closes the record under construction, if any.
func (p *logParser) flush() {
	if p.current != nil {
		p.commits = append(p.commits, p.current)
		p.current = nil
	}
}

// splitAuthor splits "Name <email>" into its parts. The email is
// optional.
func splitAuthor(rest string) (string, string) {
	rest = strings.TrimSpace(rest)

	open := strings.LastIndex(rest, "<")
	if open < 0 || !strings.HasSuffix(rest, ">") {
		return rest, ""
	}

	name := strings.TrimSpace(rest[:open])
	email := rest[open+1 : len(rest)-1]

	return name, email
}

func parseErrf(lineNo int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrParse, lineNo, fmt.Sprintf(format, args...))
}
