// Package report renders the startup summary table (spec.md 4.12), adapted
// from the teacher's build-report table in scripts/builder.go.
package report

import (
	"fmt"

	"github.com/pterm/pterm"

	"dragonfly/config"
)

// Print renders one boxed table summarizing every listener and its targets.
func Print(cfg *config.Config) {
	pterm.DefaultHeader.
		WithFullWidth().
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithMargin(10).
		Println("DRAGONFLY GATEWAY")

	rows := pterm.TableData{
		{"Listener", "Bind", "Strategy", "Target", "Upstream", "On Error", "TLS"},
	}

	for _, l := range cfg.Listeners {
		for _, t := range l.Targets {
			rows = append(rows, []string{
				l.ID,
				l.BindAddr,
				string(l.ResponseStrategy),
				t.ID,
				t.URL,
				string(t.OnError),
				tlsProfileLabel(t, l),
			})
		}
	}

	pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(rows).Render()
	pterm.Success.Printf("%d listener(s) configured\n", len(cfg.Listeners))
}

func tlsProfileLabel(t config.TargetConfig, l config.ListenerConfig) string {
	tls := l.TLS
	if t.TLS != nil {
		tls = *t.TLS
	}
	if !tls.VerifyOrDefault() {
		return pterm.FgYellow.Sprint("verify-off")
	}
	if tls.CABundle != "" {
		return fmt.Sprintf("custom-ca(%s)", tls.CABundle)
	}
	return "system-roots"
}
