package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dokzlo13/fedsync/internal/federation"
	"github.com/dokzlo13/fedsync/internal/ledger"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints a reconciliation result.
func writeResult(w io.Writer, format string, r *federation.Result) error {
	if format == "json" {
		return writeJSON(w, r)
	}

	mode := string(r.Mode)
	if r.DryRun {
		mode += " (dry run)"
	}
	fmt.Fprintf(w, "mode:     %s\n", mode)
	fmt.Fprintf(w, "local:    %s\n", r.Local)
	fmt.Fprintf(w, "changed:  %t\n", r.Changed)
	fmt.Fprintf(w, "previous: %s\n", memberList(r.Previous))
	fmt.Fprintf(w, "current:  %s\n", memberList(r.Current))

	if r.Mode != federation.ModeQuery && r.Proposed.Empty() {
		fmt.Fprintln(w, "no changes")
	}
	writeProposed(w, "", r.Proposed)
	if r.Skipped != nil {
		writeProposed(w, "skipped ", *r.Skipped)
	}
	return nil
}

func writeProposed(w io.Writer, prefix string, p federation.Proposed) {
	for _, f := range p.CreateFederation {
		fmt.Fprintf(w, "%screate federation %s\n", prefix, f.Name)
	}
	for _, m := range p.RemoveMember {
		fmt.Fprintf(w, "%sremove member %s\n", prefix, m.Address)
	}
	for _, m := range p.AddMember {
		fmt.Fprintf(w, "%sadd member %s (user %s, domain %s)\n", prefix, m.Host, m.UserName, m.LoginDomain)
	}
	for _, f := range p.DeleteFederation {
		fmt.Fprintf(w, "%sdelete federation %s\n", prefix, f.Name)
	}
}

func memberList(members []federation.Member) string {
	if len(members) == 0 {
		return "-"
	}
	addrs := make([]string, len(members))
	for i, m := range members {
		addrs[i] = m.Address
	}
	return strings.Join(addrs, ", ")
}

// writeHistory prints ledger entries, newest first.
func writeHistory(w io.Writer, format string, entries []*ledger.Entry) error {
	if format == "json" {
		if entries == nil {
			entries = []*ledger.Entry{}
		}
		return writeJSON(w, entries)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tRUN\tSOURCE\tDETAILS")
	for _, e := range entries {
		details, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.RFC3339), e.EventType, e.RunID, e.Source, details)
	}
	return tw.Flush()
}
