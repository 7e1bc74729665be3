package catalog

import (
	"fmt"
	"strings"

	"assetload/pkg/common"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// paramDef defines a single keyword parameter of a catalog builtin.
type paramDef struct {
	Name string
	Type string
	Desc string
}

// builtinDef is the schema of a keyword-only catalog builtin.
type builtinDef struct {
	Name   string
	Desc   string
	Params []paramDef
}

var resourceDef = builtinDef{
	Name: "resource",
	Desc: "Registers a resource in the catalog.",
	Params: []paramDef{
		{Name: "key", Type: "string", Desc: "Unique key of the resource"},
		{Name: "url", Type: "string", Desc: "Location of the raw bytes"},
		{Name: "kind", Type: "string", Desc: "One of model, image, audio, text"},
	},
}

// ParseStarlark evaluates a Starlark catalog script. Every call to
// resource(key=..., url=..., kind=...) appends one entry, in call order.
//
//	base = "https://cdn.example.com/"
//	resource(key = "logo", url = base + "logo.png", kind = kind.image)
func ParseStarlark(name, source string) (*Catalog, error) {
	var descs []common.Descriptor

	kinds := starlark.StringDict{}
	for _, k := range common.Kinds() {
		kinds[k.String()] = starlark.String(k.String())
	}

	builtins := starlark.StringDict{
		"kind": starlarkstruct.FromStringDict(starlark.String("kind"), kinds),
		"resource": newStrictBuiltin(resourceDef, func(kwargs map[string]starlark.Value) (starlark.Value, error) {
			key, err := stringArg(kwargs, "key")
			if err != nil {
				return nil, err
			}
			url, err := stringArg(kwargs, "url")
			if err != nil {
				return nil, err
			}
			kindName, err := stringArg(kwargs, "kind")
			if err != nil {
				return nil, err
			}
			kind, err := common.ParseKind(kindName)
			if err != nil {
				return nil, err
			}
			descs = append(descs, common.Descriptor{Key: key, Locator: url, Kind: kind})
			return starlark.None, nil
		}),
	}

	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Catalog scripts have no output channel.
		},
	}
	if _, err := starlark.ExecFile(thread, name+".star", source, builtins); err != nil {
		return nil, fmt.Errorf("failed to evaluate catalog %s: %w", name, err)
	}
	return New(descs)
}

func stringArg(kwargs map[string]starlark.Value, name string) (string, error) {
	s, ok := starlark.AsString(kwargs[name])
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", name, kwargs[name].Type())
	}
	return s, nil
}

type strictAction func(kwargs map[string]starlark.Value) (starlark.Value, error)

// newStrictBuiltin creates a Starlark builtin that mandates keyword-only arguments.
func newStrictBuiltin(def builtinDef, action strictAction) *starlark.Builtin {
	return starlark.NewBuiltin(def.Name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: takes keyword-only arguments\n%s", def.Name, usage(def))
		}

		kwMap := make(map[string]starlark.Value)
		for _, pair := range kwargs {
			kwMap[string(pair[0].(starlark.String))] = pair[1]
		}

		if err := validateArgs(def, kwMap); err != nil {
			return nil, fmt.Errorf("%s: %w\n%s", def.Name, err, usage(def))
		}

		return action(kwMap)
	})
}

func validateArgs(def builtinDef, kwMap map[string]starlark.Value) error {
	var missing []string
	for _, p := range def.Params {
		if _, ok := kwMap[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing mandatory arguments: %v", missing)
	}

	for k := range kwMap {
		found := false
		for _, p := range def.Params {
			if p.Name == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown argument '%s'", k)
		}
	}
	return nil
}

func usage(def builtinDef) string {
	var sb strings.Builder
	sb.WriteString("\nDescription:\n  " + def.Desc + "\n")
	sb.WriteString("\nUsage:\n  " + def.Name + "(\n")
	for _, p := range def.Params {
		fmt.Fprintf(&sb, "    %-15s # (%s) %s\n", p.Name+"=", p.Type, p.Desc)
	}
	sb.WriteString("  )\n")
	return sb.String()
}
