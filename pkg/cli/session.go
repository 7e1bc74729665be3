package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"assetload/pkg/loader"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const sessionPrompt = "assetload> "

type session struct {
	in     *bufio.Reader
	out    io.Writer
	err    io.Writer
	loader *loader.Loader
	reg    prometheus.Gatherer
}

func (h *DefaultHandlers) Session(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	l, err := h.Mgr.NewLoader(h.Mgr.Disp)
	if err != nil {
		return nil, err
	}
	s := &session{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		err:    os.Stderr,
		loader: l,
	}
	if h.Mgr.Registry != nil {
		s.reg = h.Mgr.Registry
	}
	if err := s.Run(ctx); err != nil {
		return nil, err
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func (s *session) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "Catalog: %d resources\n", s.loader.Catalog().Len())
	s.printHelp()

	for {
		if _, err := fmt.Fprint(s.out, sessionPrompt); err != nil {
			return err
		}
		line, err := s.in.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.handleLine(ctx, line); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Fprintf(s.err, "Error: %v\n", err)
		}
	}
}

func (s *session) handleLine(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "list", "ls", "status":
		return s.printStatus(args)
	case "load", "request":
		if len(args) == 0 {
			return fmt.Errorf("usage: load <key>...")
		}
		return s.eachKey(args, func(key string) error { return s.loader.Request(ctx, key) })
	case "release", "unload":
		if len(args) == 0 {
			return fmt.Errorf("usage: release <key>...")
		}
		return s.eachKey(args, func(key string) error {
			err := s.loader.Release(key)
			if errors.Is(err, loader.ErrNotLoaded) {
				fmt.Fprintf(s.out, "warning: %s is not loaded\n", key)
				return nil
			}
			return err
		})
	case "retry":
		if len(args) == 0 {
			return fmt.Errorf("usage: retry <key>...")
		}
		return s.eachKey(args, func(key string) error { return s.loader.Retry(ctx, key) })
	case "metrics":
		return s.printMetrics()
	case "exit", "quit":
		return io.EOF
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", cmd)
	}
}

// eachKey runs fn for every key and reports all failures.
func (s *session) eachKey(keys []string, fn func(string) error) error {
	var errs []error
	for _, key := range keys {
		if err := fn(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  load <key>...     fetch, decode and display")
	fmt.Fprintln(s.out, "  release <key>...  destroy the loaded value and clear its view")
	fmt.Fprintln(s.out, "  retry <key>...    load a failed key again")
	fmt.Fprintln(s.out, "  status [key]...   show load states")
	fmt.Fprintln(s.out, "  metrics           show loader counters")
	fmt.Fprintln(s.out, "  exit              leave the session")
}

func (s *session) printStatus(keys []string) error {
	for _, key := range keys {
		if _, err := s.loader.Status(key); err != nil {
			return err
		}
	}
	table := statusTable(s.loader.Snapshot(), keys)
	for _, row := range table.Rows {
		fmt.Fprintf(s.out, "  %-16s %-6s %-8s %-8s %s\n", row[0], row[1], row[2], row[3], row[4])
	}
	return nil
}

func (s *session) printMetrics() error {
	if s.reg == nil {
		fmt.Fprintln(s.out, "Metrics are not enabled.")
		return nil
	}
	families, err := s.reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "assetload_") {
			continue
		}
		for _, m := range f.GetMetric() {
			lines = append(lines, fmt.Sprintf("  %s%s %s", f.GetName(), labelString(m), metricValue(f.GetType(), m)))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		fmt.Fprintln(s.out, "No loads yet.")
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(s.out, line)
	}
	return nil
}

func labelString(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func metricValue(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.3fs", h.GetSampleCount(), h.GetSampleSum())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	}
	return "?"
}
