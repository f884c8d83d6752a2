package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"git.home.luguber.info/inful/twinbuild/internal/bundler/esbuild"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// RoutesCmd implements the 'routes' command.
type RoutesCmd struct {
	NoExports bool `name:"no-exports" help:"Skip export analysis of route modules"`
}

func (r *RoutesCmd) Run(_ *Global, root *CLI) error {
	p, err := loadProject(root.Config)
	if err != nil {
		return err
	}

	var exports routes.ExportSet
	if !r.NoExports {
		exports, err = routes.ScanExports(context.Background(), esbuild.New(0), p.cfg.AppDirectory, p.table)
		if err != nil {
			return err
		}
	}
	renderRoutes(os.Stdout, p.table, exports)
	return nil
}

// renderRoutes prints one row per route in id order. Export columns are
// left blank when exports is nil.
func renderRoutes(w io.Writer, table routes.Table, exports routes.ExportSet) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "Parent", "Path", "Index", "File", "Loader", "Action"})
	tw.SetBorder(false)
	tw.SetCenterSeparator("")
	tw.SetAutoWrapText(false)

	for _, id := range table.IDs() {
		def := table[id]
		loader, action := "", ""
		if exports != nil {
			loader = strconv.FormatBool(exports.Has(id, "loader"))
			action = strconv.FormatBool(exports.Has(id, "action"))
		}
		tw.Append([]string{def.ID, def.ParentID, def.Path, strconv.FormatBool(def.Index), def.File, loader, action})
	}
	tw.SetFooter([]string{fmt.Sprintf("%d routes", len(table)), "", "", "", "", "", ""})
	tw.Render()
}
