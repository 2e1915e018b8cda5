package plan

import (
	"fmt"
	"io"
	"strings"
)

// messageIndent prefixes the trailing message block of reword entries.
const messageIndent = "    "

// EmitOptions controls todo rendering.
type EmitOptions struct {
	// IncludeDrops interleaves explicit "drop <id>" lines at the
	// original positions of elided commits.
	IncludeDrops bool
}

// WriteTodo renders the plan as rebase-todo command lines:
//
//	pick <id>
//	drop <id>
//	reword <id> <subject>
//	    <full replacement message>
//	squash <id> into <target-id>
//
// Squash groups render as the target's pick/reword line followed by one
// squash line per merged commit.
func (p *Plan) WriteTodo(w io.Writer, opts EmitOptions) error {
	drops := p.Drops
	dropAt := 0

	emit := func(format string, args ...any) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		if err != nil {
			return fmt.Errorf("write todo: %w", err)
		}

		return nil
	}

	flushDrops := func(before int) error {
		if !opts.IncludeDrops {
			return nil
		}

		for dropAt < len(drops) && (before < 0 || drops[dropAt].Index < before) {
			err := emit("drop %s", drops[dropAt].ID)
			if err != nil {
				return err
			}

			dropAt++
		}

		return nil
	}

	for i := range p.Ops {
		op := &p.Ops[i]

		err := flushDrops(op.Index)
		if err != nil {
			return err
		}

		err = emitOperation(emit, op)
		if err != nil {
			return err
		}
	}

	return flushDrops(-1)
}

func emitOperation(emit func(string, ...any) error, op *Operation) error {
	var err error

	switch {
	case op.Message != "":
		err = emit("reword %s %s", op.Commit, subjectOf(op.Message))
		if err == nil {
			err = emitMessageBlock(emit, op.Message)
		}
	default:
		err = emit("pick %s", op.Commit)
	}

	if err != nil {
		return err
	}

	for _, member := range op.Squashed {
		err = emit("squash %s into %s", member, op.Commit)
		if err != nil {
			return err
		}
	}

	return nil
}

func emitMessageBlock(emit func(string, ...any) error, message string) error {
	for _, line := range strings.Split(message, "\n") {
		err := emit("%s%s", messageIndent, line)
		if err != nil {
			return err
		}
	}

	return nil
}

func subjectOf(message string) string {
	subject, _, _ := strings.Cut(message, "\n")

	return subject
}

// Todo renders the plan to a string with default options.
func (p *Plan) Todo() string {
	var sb strings.Builder

	// strings.Builder never fails.
	_ = p.WriteTodo(&sb, EmitOptions{})

	return sb.String()
}
