package cli

import (
	"fmt"
	"slices"
)

// parser builds the engine's command tree from cli.def. Statements attach
// to the most recent 'cmd' (flags, args, examples) or 'topic' (text); flags
// seen after 'global' or before any 'cmd' are global.
// Mutable
type parser struct {
	lex       *lexer
	tok       token
	engine    *Engine
	lastCmd   *Command
	lastTopic *Topic
}

func newParser(dsl string, engine *Engine) *parser {
	p := &parser{
		lex:    newLexer(dsl),
		engine: engine,
	}
	p.next()
	return p
}

func (p *parser) next() {
	p.tok = p.lex.nextToken()
}

func (p *parser) errorf(format string, a ...any) error {
	return fmt.Errorf("line %d: %s", p.tok.line, fmt.Sprintf(format, a...))
}

// expect consumes a token of kind and returns its value. what names the
// token in the error message.
func (p *parser) expect(kind tokenKind, what string) (string, error) {
	if p.tok.kind != kind {
		return "", p.errorf("expected %s", what)
	}
	v := p.tok.value
	p.next()
	return v, nil
}

// expectOneOf consumes an identifier that must be one of allowed.
func (p *parser) expectOneOf(what, owner string, allowed ...string) (string, error) {
	v, err := p.expect(tokIdentifier, what)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, v) {
		return "", p.errorf("%s: unknown type %q", owner, v)
	}
	return v, nil
}

func (p *parser) parse() error {
	for p.tok.kind != tokEOF {
		if p.tok.kind == tokError {
			return p.errorf("%s", p.tok.value)
		}
		if p.tok.kind != tokIdentifier {
			return p.errorf("expected keyword, got %q", p.tok.value)
		}
		keyword := p.tok.value
		stmt, ok := p.statements()[keyword]
		if !ok {
			return p.errorf("unknown keyword %q", keyword)
		}
		p.next()
		if err := stmt(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) statements() map[string]func() error {
	return map[string]func() error{
		"global":  p.parseGlobal,
		"cmd":     p.parseCommand,
		"flag":    p.parseFlag,
		"arg":     p.parseArg,
		"example": p.parseExample,
		"topic":   p.parseTopic,
		"text":    p.parseText,
	}
}

func (p *parser) parseGlobal() error {
	p.lastCmd = nil
	p.lastTopic = nil
	return nil
}

func (p *parser) parseFlag() error {
	name, err := p.expect(tokIdentifier, "flag name")
	if err != nil {
		return err
	}
	fType, err := p.expectOneOf("flag type", "flag "+name, "bool", "string")
	if err != nil {
		return err
	}
	desc, err := p.expect(tokString, "flag description")
	if err != nil {
		return err
	}
	f := &Flag{Name: name, Type: fType, Desc: desc}

	// Optional single-letter short name.
	if p.tok.kind == tokIdentifier && len(p.tok.value) == 1 {
		f.Short = p.tok.value
		p.next()
	}

	if p.lastCmd == nil {
		p.engine.GlobalFlags = append(p.engine.GlobalFlags, f)
	} else {
		p.lastCmd.Flags = append(p.lastCmd.Flags, f)
	}
	return nil
}

// parseCommand handles 'cmd word... ["desc"]'. Missing parents are created
// on the fly, so 'cmd bundle build' works before or after 'cmd bundle'.
func (p *parser) parseCommand() error {
	p.lastTopic = nil

	var path []string
	for p.tok.kind == tokIdentifier {
		path = append(path, p.tok.value)
		p.next()
	}
	if len(path) == 0 {
		return p.errorf("expected command name or path")
	}
	desc := ""
	if p.tok.kind == tokString {
		desc = p.tok.value
		p.next()
	}

	siblings := &p.engine.Commands
	var parent, cmd *Command
	for _, name := range path {
		idx := slices.IndexFunc(*siblings, func(c *Command) bool { return c.Name == name })
		if idx >= 0 {
			cmd = (*siblings)[idx]
		} else {
			cmd = &Command{Name: name, Parent: parent}
			*siblings = append(*siblings, cmd)
		}
		parent = cmd
		siblings = &cmd.Subs
	}
	if desc != "" {
		cmd.Desc = desc
	}
	p.lastCmd = cmd
	return nil
}

func (p *parser) parseArg() error {
	if p.lastCmd == nil {
		return p.errorf("'arg' must follow a 'cmd'")
	}
	name, err := p.expect(tokIdentifier, "arg name")
	if err != nil {
		return err
	}
	aType, err := p.expectOneOf("arg type", "arg "+name, "string", "strings")
	if err != nil {
		return err
	}
	desc, err := p.expect(tokString, "arg description")
	if err != nil {
		return err
	}

	args := p.lastCmd.Args
	if n := len(args); n > 0 && args[n-1].Type == "strings" {
		return p.errorf("arg %s follows variadic arg %s", name, args[n-1].Name)
	}
	p.lastCmd.Args = append(args, &Arg{Name: name, Type: aType, Desc: desc})
	return nil
}

func (p *parser) parseExample() error {
	if p.lastCmd == nil {
		return p.errorf("'example' must follow a 'cmd'")
	}
	ex, err := p.expect(tokString, "example string")
	if err != nil {
		return err
	}
	p.lastCmd.Examples = append(p.lastCmd.Examples, ex)
	return nil
}

func (p *parser) parseTopic() error {
	p.lastCmd = nil
	name, err := p.expect(tokIdentifier, "topic name")
	if err != nil {
		return err
	}
	desc, err := p.expect(tokString, "topic description")
	if err != nil {
		return err
	}
	t := &Topic{Name: name, Desc: desc}
	p.engine.Topics = append(p.engine.Topics, t)
	p.lastTopic = t
	return nil
}

func (p *parser) parseText() error {
	if p.lastTopic == nil {
		return p.errorf("'text' must follow a 'topic'")
	}
	text, err := p.expect(tokString, "text string")
	if err != nil {
		return err
	}
	p.lastTopic.Text = text
	return nil
}
