package cli

import (
	"context"

	"assetload/pkg/common"
)

// ExecutionResult is what a command handler hands back to main.
type ExecutionResult = common.ExecutionResult

type Flag struct {
	Name  string
	Short string
	Type  string // "bool", "string"
	Desc  string
}

type Arg struct {
	Name string
	Type string // "string", or "strings" for a trailing variadic arg
	Desc string
}

type Command struct {
	Name     string
	Desc     string
	Args     []*Arg
	Flags    []*Flag
	Subs     []*Command
	Parent   *Command
	Examples []string
}

type Topic struct {
	Name string
	Desc string
	Text string
}

// Invocation is a parsed command line.
type Invocation struct {
	Command *Command
	Args    map[string]string
	Lists   map[string][]string
	Flags   map[string]any
	Global  map[string]any
}

func (inv *Invocation) Bool(name string) bool {
	v, _ := inv.Flags[name].(bool)
	return v
}

func (inv *Invocation) String(name string) string {
	v, _ := inv.Flags[name].(string)
	return v
}

func (inv *Invocation) GlobalBool(name string) bool {
	v, _ := inv.Global[name].(bool)
	return v
}

func (inv *Invocation) GlobalString(name string) string {
	v, _ := inv.Global[name].(string)
	return v
}

type Handler interface {
	Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	return f(ctx, inv)
}
