package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/persist"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

func newPendingCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show persisted pending actions",
		Long:  "Render the actions left in the state file by an interrupted or faulted run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			store, err := pendingStore(cfg)
			if err != nil {
				return err
			}

			info, err := store.Stat()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "no pending actions (%s does not exist)\n", store.Path())

				return nil
			}

			if err != nil {
				return err
			}

			pending, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			renderPending(cmd.OutOrStdout(), info, pending, flags.noColor)

			return nil
		},
	}
}

func renderPending(out io.Writer, info persist.FileInfo, pending settings.PendingActions, noColor bool) {
	fmt.Fprintf(out, "state file: %s (%s, written %s)\n",
		info.Path, humanize.Bytes(uint64(max(info.Size, 0))), humanize.Time(info.ModTime))

	if len(pending.Actions) == 0 {
		fmt.Fprintln(out, "no pending actions")

		return
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(table.Row{"#", "Action", "Type", "Media item"})

	counts := make(map[action.Type]int)

	for i, rec := range pending.Actions {
		counts[rec.Type]++

		tbl.AppendRow(table.Row{i + 1, rec.ID.String(), typeLabel(rec.Type, noColor), rec.MediaItemID.String()})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d actions", len(pending.Actions)),
		fmt.Sprintf("%d analyze / %d delete", counts[action.Analyze], counts[action.Delete]), ""})

	fmt.Fprintln(out, tbl.Render())
}

func typeLabel(typ action.Type, noColor bool) string {
	var paint *color.Color

	switch typ {
	case action.Analyze:
		paint = color.New(color.FgGreen)
	case action.Delete:
		paint = color.New(color.FgRed)
	default:
		paint = color.New(color.FgYellow)
	}

	if noColor {
		paint.DisableColor()
	} else {
		paint.EnableColor()
	}

	return paint.Sprint(typ.String())
}
