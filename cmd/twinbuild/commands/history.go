package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/journal"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of entries to show" default:"20"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		fmt.Printf("No journal at %s\n", cfg.Journal.Path)
		return nil
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	renderHistory(os.Stdout, entries)
	return nil
}

func renderHistory(w io.Writer, entries []journal.Entry) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Time", "Session", "Pipeline", "Kind", "Version", "OK", "Duration", "Detail"})
	tw.SetBorder(false)
	tw.SetCenterSeparator("")
	tw.SetAutoWrapText(false)

	for _, e := range entries {
		session := e.Session
		if len(session) > 8 {
			session = session[:8]
		}
		duration := ""
		if e.Duration > 0 {
			duration = e.Duration.Round(time.Millisecond).String()
		}
		ok := "yes"
		if !e.Success {
			ok = "no"
		}
		tw.Append([]string{
			e.At.Local().Format(time.DateTime),
			session,
			e.Pipeline,
			string(e.Kind),
			e.Version,
			ok,
			duration,
			e.Detail,
		})
	}
	tw.Render()
}
