package main

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type metricMeta struct {
	typ, help string
	isMap     bool
	label     string
}

// knownMetrics describes the series published by internal/infrastructure/metrics.
var knownMetrics = map[string]metricMeta{
	"agentflow_runs_started_total":       {typ: "counter", help: "Runs started"},
	"agentflow_runs_finished_total":      {typ: "counter", help: "Runs whose terminal received every input"},
	"agentflow_transfers_departed_total": {typ: "counter", help: "Transfers that left their source node"},
	"agentflow_transfers_arrived_total":  {typ: "counter", help: "Transfers delivered to their target node"},
	"agentflow_stale_callbacks_total":    {typ: "counter", help: "Callbacks of superseded runs that were dropped"},
	"agentflow_inflight_transfers":       {typ: "gauge", help: "Transfers currently travelling"},
	"agentflow_hub_dropped_events_total": {typ: "counter", help: "Events skipped for slow subscribers"},
	"agentflow_hub_subscribers":          {typ: "gauge", help: "Open event subscriptions"},
	"agentflow_checkpoints_saved_total":  {typ: "counter", help: "Checkpoints written", isMap: true, label: "backend"},
	"agentflow_checkpoint_errors_total":  {typ: "counter", help: "Checkpoints dropped or failed", isMap: true, label: "backend"},
}

// promMetricsHandler renders expvar-published metrics in Prometheus text
// format. Unknown integer vars are exported as untyped gauges.
func promMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	names := make([]string, 0, 32)
	expvar.Do(func(kv expvar.KeyValue) {
		names = append(names, kv.Key)
	})
	sort.Strings(names)

	for _, name := range names {
		v := expvar.Get(name)
		m, known := knownMetrics[name]
		if !known {
			if iv, ok := v.(*expvar.Int); ok {
				fmt.Fprintf(w, "# TYPE %s gauge\n%s %s\n", name, name, iv.String())
			}
			continue
		}
		fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		if !m.isMap {
			fmt.Fprintf(w, "%s %s\n", name, v.String())
			continue
		}
		mp, ok := v.(*expvar.Map)
		if !ok {
			continue
		}
		sub := make([]expvar.KeyValue, 0, 4)
		mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
		sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
		for _, kv := range sub {
			fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
		}
	}
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// escapeLabel escapes backslash, double-quote and newline
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
