package cli

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed cli.def
var DefaultDSL string

const programName = "assetload"

// Mutable
type Engine struct {
	GlobalFlags []*Flag
	Commands    []*Command
	Topics      []*Topic
	Handlers    map[string]Handler
	Theme       *Theme
	Out         io.Writer
}

func NewEngine(dsl string) (*Engine, error) {
	e := &Engine{
		Handlers: make(map[string]Handler),
		Theme:    DefaultTheme(),
		Out:      os.Stdout,
	}
	if err := e.parseDSL(dsl); err != nil {
		return nil, err
	}
	e.Commands = append(e.Commands, &Command{
		Name: "help",
		Desc: "Show help information",
	})
	return e, nil
}

// MakeEngine builds the engine for the embedded command definitions.
func MakeEngine() (*Engine, error) {
	return NewEngine(DefaultDSL)
}

// Register binds a handler to a command path such as "bundle/build".
func (e *Engine) Register(cmdPath string, h Handler) {
	e.Handlers[cmdPath] = h
}

func (e *Engine) parseDSL(dsl string) error {
	p := newParser(dsl, e)
	return p.parse()
}

type ParseResult struct {
	Invocation *Invocation
	Help       bool
	HelpArgs   []string
	Error      error
}

func (e *Engine) Run(ctx context.Context, args []string) (*ExecutionResult, error) {
	res := e.Parse(args)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.Help {
		e.PrintHelp(res.HelpArgs...)
		return &ExecutionResult{ExitCode: 0}, nil
	}
	return e.Execute(ctx, res.Invocation)
}

// Parse resolves args against the command tree. Global flags may appear
// anywhere on the line.
func (e *Engine) Parse(args []string) *ParseResult {
	res := &ParseResult{
		Invocation: &Invocation{
			Args:   make(map[string]string),
			Lists:  make(map[string][]string),
			Flags:  make(map[string]any),
			Global: make(map[string]any),
		},
	}
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--help" || arg == "-h" {
			res.Help = true
			continue
		}
		gf := matchFlag(e.GlobalFlags, arg)
		if gf == nil {
			remaining = append(remaining, arg)
			continue
		}
		if gf.Type == "bool" {
			res.Invocation.Global[gf.Name] = true
			continue
		}
		if i+1 >= len(args) {
			res.Error = fmt.Errorf("flag --%s requires a value", gf.Name)
			return res
		}
		res.Invocation.Global[gf.Name] = args[i+1]
		i++
	}

	if res.Help || len(remaining) == 0 {
		res.Help = true
		res.HelpArgs = remaining
		return res
	}

	if err := e.resolve(res, e.Commands, remaining); err != nil {
		res.Error = err
	}
	return res
}

func (e *Engine) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	path := getCmdPath(inv.Command)
	if h, ok := e.Handlers[path]; ok {
		return h.Execute(ctx, inv)
	}
	return nil, fmt.Errorf("no handler registered for command: %s", path)
}

func (e *Engine) resolve(res *ParseResult, cmds []*Command, args []string) error {
	word := args[0]
	var matches []*Command
	for _, c := range cmds {
		if c.Name == word {
			matches = []*Command{c}
			break
		}
		if strings.HasPrefix(c.Name, word) {
			matches = append(matches, c)
		}
	}
	if len(matches) > 1 {
		var names []string
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return fmt.Errorf("ambiguous command: %s (candidates: %s)", word, strings.Join(names, ", "))
	}
	if len(matches) == 0 {
		return fmt.Errorf("unknown command: %s", word)
	}

	cmd := matches[0]
	rest := args[1:]
	if cmd.Name == "help" && cmd.Parent == nil {
		res.Help = true
		res.HelpArgs = rest
		return nil
	}
	if len(cmd.Subs) > 0 {
		// A parent on its own, or with an unknown child, shows its help.
		if len(rest) == 0 {
			res.Help = true
			res.HelpArgs = cmdWords(cmd)
			return nil
		}
		err := e.resolve(res, cmd.Subs, rest)
		if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
			res.Help = true
			res.HelpArgs = cmdWords(cmd)
			return nil
		}
		return err
	}

	res.Invocation.Command = cmd
	return e.parseParams(res.Invocation, cmd, rest)
}

func (e *Engine) parseParams(inv *Invocation, cmd *Command, args []string) error {
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			f := matchFlag(cmd.Flags, arg)
			if f == nil {
				return fmt.Errorf("unknown flag %s for %s", arg, getCmdPath(cmd))
			}
			if f.Type == "bool" {
				inv.Flags[f.Name] = true
				continue
			}
			if i+1 >= len(args) {
				return fmt.Errorf("flag --%s requires a value", f.Name)
			}
			inv.Flags[f.Name] = args[i+1]
			i++
			continue
		}
		positional = append(positional, arg)
	}

	for i, a := range cmd.Args {
		if a.Type == "strings" {
			if i >= len(positional) {
				return fmt.Errorf("argument %s is missing", a.Name)
			}
			inv.Lists[a.Name] = positional[i:]
			return nil
		}
		if i >= len(positional) {
			return fmt.Errorf("argument %s is missing", a.Name)
		}
		inv.Args[a.Name] = positional[i]
	}
	if len(positional) > len(cmd.Args) {
		return fmt.Errorf("unexpected argument: %s", positional[len(cmd.Args)])
	}
	return nil
}

func matchFlag(flags []*Flag, arg string) *Flag {
	for _, f := range flags {
		if arg == "--"+f.Name || (f.Short != "" && arg == "-"+f.Short) {
			return f
		}
	}
	return nil
}

func (e *Engine) printf(format string, a ...any) {
	fmt.Fprintf(e.Out, format, a...)
}

func (e *Engine) PrintHelp(args ...string) {
	t := e.Theme
	if len(args) > 0 {
		subject := args[0]
		for _, topic := range e.Topics {
			if topic.Name == subject {
				e.PrintTopicHelp(topic)
				return
			}
		}
		// Find command in hierarchy
		curr := e.Commands
		var found *Command
		for _, arg := range args {
			var match *Command
			for _, c := range curr {
				if c.Name == arg || strings.HasPrefix(c.Name, arg) {
					match = c
					break
				}
			}
			if match == nil {
				break
			}
			found = match
			curr = match.Subs
		}
		if found != nil {
			e.PrintCommandHelp(found)
			return
		}
		for _, topic := range e.Topics {
			if strings.HasPrefix(topic.Name, subject) {
				e.PrintTopicHelp(topic)
				return
			}
		}
	}
	e.printf("%s\n", t.Styled(t.Cyan.Bold(true), programName+" - remote resource loader"))
	e.printf("\n%s\n", t.Styled(t.Bold, "Usage:"))
	e.printf("  %s %s\n", programName, t.Styled(t.Yellow, "[flags] <command>"))
	e.printf("\n%s\n", t.Styled(t.Bold, "Global Flags:"))
	e.printf("  %-16s %s\n", t.Styled(t.Cyan, "--help, -h"), t.Styled(t.Dim, "Show help [command | topic]"))
	for _, f := range e.GlobalFlags {
		short := ""
		if f.Short != "" {
			short = ", -" + f.Short
		}
		e.printf("  %-16s %s\n", t.Styled(t.Cyan, "--"+f.Name+short), t.Styled(t.Dim, f.Desc))
	}

	categories := []struct {
		name string
		icon string
		cmds []string
	}{
		{"RESOURCES", t.IconLoad, []string{"load", "session", "browse"}},
		{"CATALOG", t.IconCatalog, []string{"catalog"}},
		{"BUNDLES", t.IconBundle, []string{"bundle"}},
	}
	shown := make(map[string]bool)
	e.printf("\n")
	for _, cat := range categories {
		var cmds []*Command
		for _, name := range cat.cmds {
			for _, c := range e.Commands {
				if c.Name == name {
					cmds = append(cmds, c)
					shown[c.Name] = true
				}
			}
		}
		if len(cmds) == 0 {
			continue
		}
		e.printf("%s %s\n", cat.icon, t.Styled(t.Bold, cat.name))
		for i, c := range cmds {
			e.printCommandTree(c, "", i == len(cmds)-1)
		}
		e.printf("\n")
	}
	var misc []*Command
	for _, c := range e.Commands {
		if !shown[c.Name] && c.Name != "help" {
			misc = append(misc, c)
		}
	}
	if len(misc) > 0 {
		e.printf("%s %s\n", t.Bullet, t.Styled(t.Bold, "MISC"))
		for i, c := range misc {
			e.printCommandTree(c, "", i == len(misc)-1)
		}
		e.printf("\n")
	}
	if len(e.Topics) > 0 {
		e.printf("%s %s\n", t.IconHelp, t.Styled(t.Bold, "Topics:"))
		for _, topic := range e.Topics {
			e.printf("  %s %s %s\n", t.Styled(t.Cyan, topic.Name), e.getPadding(len(topic.Name), 20), t.Styled(t.Dim, topic.Desc))
		}
	}
	e.printf("\nType '%s' for more details.\n", t.Styled(t.Yellow, programName+" help <command>"))
}

func (e *Engine) getPadding(used int, target int) string {
	t := e.Theme
	dots := target - used
	if dots < 2 {
		dots = 2
	}
	return t.Styled(t.Dim, strings.Repeat(".", dots))
}

func (e *Engine) printCommandTree(c *Command, indent string, isLast bool) {
	t := e.Theme
	prefix := t.BoxTree
	if isLast {
		prefix = t.BoxLast
	}
	// Box drawing prefixes are three cells wide plus a space.
	visualLen := len([]rune(indent)) + 4 + len(c.Name)
	e.printf("%s%s %s %s %s\n", indent, prefix, t.Styled(t.Cyan, c.Name), e.getPadding(visualLen, 30), t.Styled(t.Dim, c.Desc))

	newIndent := indent
	if isLast {
		newIndent += "    "
	} else {
		newIndent += t.BoxItem + " "
	}
	for i, s := range c.Subs {
		e.printCommandTree(s, newIndent, i == len(c.Subs)-1)
	}
}

func (e *Engine) PrintCommandHelp(c *Command) {
	t := e.Theme
	e.printf("\n%s %s\n", t.Styled(t.Bold, "Command:"), t.Styled(t.Cyan, strings.Join(cmdWords(c), " ")))
	e.printf("%s %s\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, c.Desc))
	e.printf("\n")
	if len(c.Subs) > 0 {
		e.printf("%s\n", t.Styled(t.Bold, "Subcommands:"))
		for i, s := range c.Subs {
			prefix := t.BoxTree
			if i == len(c.Subs)-1 {
				prefix = t.BoxLast
			}
			e.printf("  %s %-12s %s\n", prefix, t.Styled(t.Cyan, s.Name), t.Styled(t.Dim, s.Desc))
		}
		e.printf("\n")
	}
	if len(c.Args) > 0 {
		e.printf("%s\n", t.Styled(t.Bold, "Arguments:"))
		for _, a := range c.Args {
			name := "<" + a.Name + ">"
			if a.Type == "strings" {
				name = "<" + a.Name + "...>"
			}
			e.printf("  %-15s %s\n", t.Styled(t.Yellow, name), t.Styled(t.Dim, a.Desc))
		}
		e.printf("\n")
	}
	if len(c.Flags) > 0 {
		e.printf("%s\n", t.Styled(t.Bold, "Flags:"))
		for _, f := range c.Flags {
			short := ""
			if f.Short != "" {
				short = ", -" + f.Short
			}
			e.printf("  %-15s %s\n", t.Styled(t.Cyan, "--"+f.Name+short), t.Styled(t.Dim, f.Desc))
		}
		e.printf("\n")
	}
	if len(c.Examples) > 0 {
		e.printf("%s\n", t.Styled(t.Bold, "Examples:"))
		for _, ex := range c.Examples {
			e.printf("  %s %s\n", t.Styled(t.Green, "$"), ex)
		}
		e.printf("\n")
	}
}

func (e *Engine) PrintTopicHelp(topic *Topic) {
	t := e.Theme
	e.printf("\n%s %s\n", t.Styled(t.Bold, "Topic:"), t.Styled(t.Cyan, topic.Name))
	e.printf("%s %s\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, topic.Desc))
	e.printf("\n")
	e.printf("%s\n\n", topic.Text)
}

func getCmdPath(c *Command) string {
	if c.Parent == nil {
		return c.Name
	}
	return getCmdPath(c.Parent) + "/" + c.Name
}

func cmdWords(c *Command) []string {
	if c.Parent == nil {
		return []string{c.Name}
	}
	return append(cmdWords(c.Parent), c.Name)
}
