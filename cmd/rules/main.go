// Command rules validates rule documents and shows what an event would fire.
//
//	rules -check risk.yaml session.yaml
//	rules -fire trade_closed risk.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/algobot/gotrade/internal/rules"
	"github.com/algobot/gotrade/pkg/logger"
)

func main() {
	var (
		policyName = flag.String("policy", "last_wins", "duplicate policy: last_wins or reject")
		fireEvent  = flag.String("fire", "", "dispatch this event name and print the fired rules")
		meta       = flag.String("meta", "", "comma separated k=v pairs attached to the fired event")
	)
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		fatal(err)
	}
	if flag.NArg() == 0 {
		fatal(fmt.Errorf("no rule files given"))
	}

	policy := rules.MergeLastWins
	switch *policyName {
	case "last_wins":
	case "reject":
		policy = rules.MergeReject
	default:
		fatal(fmt.Errorf("unknown policy %q", *policyName))
	}

	reg := rules.NewRegistry()
	if err := reg.LoadFiles(policy, flag.Args()...); err != nil {
		fmt.Fprintf(os.Stderr, "load failed (%s): %v\n", reg.State(), err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d rules\n\n", reg.State(), reg.Len())
	for _, r := range reg.Rules() {
		printRule(reg, r)
	}

	if *fireEvent != "" {
		fire(reg, *fireEvent, parseMeta(*meta))
	}
}

func printRule(reg *rules.Registry, r *rules.Rule) {
	kind := "rule"
	if r.IsHub() {
		kind = "hub"
	}
	fmt.Printf("%-24s %s", r.Name, kind)
	if r.Enforced {
		fmt.Print(" enforced")
	}
	fmt.Println()
	if r.Description != "" {
		fmt.Printf("    %s\n", r.Description)
	}
	if len(r.Triggers) > 0 {
		fmt.Printf("    on %s -> %s\n", strings.Join(r.Triggers, ", "), strings.Join(r.Actions, ", "))
	}
	if chain, err := reg.Ancestors(r.Name); err == nil && len(chain) > 0 {
		fmt.Printf("    under %s\n", strings.Join(chain, " < "))
	}
}

func fire(reg *rules.Registry, event string, meta map[string]string) {
	handler := rules.ActionHandlerFunc(func(ctx context.Context, action string, ev rules.Event) error {
		fmt.Printf("    would run %s\n", action)
		return nil
	})
	d := rules.NewDispatcher(reg, handler, nil)

	fmt.Printf("\ndispatch %q\n", event)
	fired, err := d.Dispatch(context.Background(), rules.Event{Name: event, Meta: meta, Time: time.Now().UTC()})
	if err != nil {
		fatal(err)
	}
	if len(fired) == 0 {
		fmt.Println("    no rule matched")
		return
	}
	for _, f := range fired {
		fmt.Printf("  %s fired with %d actions\n", f.Rule.Name, len(f.Actions))
	}
}

func parseMeta(s string) map[string]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
