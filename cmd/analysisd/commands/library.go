package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/analysisd/pkg/config"
	"github.com/Sumatoshi-tech/analysisd/pkg/library"
	"github.com/Sumatoshi-tech/analysisd/pkg/media"
)

// ErrMissingItemID is returned for an imported item without media_item_id.
var ErrMissingItemID = errors.New("media_item_id is required")

// itemDocument is one line of a library import file.
type itemDocument struct {
	ID      uuid.UUID     `json:"media_item_id"`
	Title   string        `json:"title"`
	Aspects media.Aspects `json:"aspects"`
}

func newLibraryCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the media library",
	}

	cmd.AddCommand(newLibraryImportCommand(flags))
	cmd.AddCommand(newLibraryListCommand(flags))

	return cmd
}

func newLibraryImportCommand(flags *globalFlags) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import media items from newline-delimited JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			lib, err := openLibrary(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer lib.Close()

			input := cmd.InOrStdin()

			if inputPath != stdinPath {
				file, openErr := os.Open(inputPath)
				if openErr != nil {
					return fmt.Errorf("open input: %w", openErr)
				}
				defer file.Close()

				input = file
			}

			count, err := importItems(cmd, lib, input)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %s media items\n", humanize.Comma(int64(count)))

			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", stdinPath, "Media item file, or - for stdin")

	return cmd
}

func importItems(cmd *cobra.Command, lib *library.Library, input io.Reader) (int, error) {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	count := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var doc itemDocument

		err := json.Unmarshal(line, &doc)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if doc.ID == uuid.Nil {
			return count, fmt.Errorf("line %d: %w", lineNo, ErrMissingItemID)
		}

		err = lib.PutMediaItem(cmd.Context(), media.Item{ID: doc.ID, Aspects: doc.Aspects}, doc.Title)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", lineNo, err)
		}

		count++
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return count, fmt.Errorf("read input: %w", scanErr)
	}

	return count, nil
}

func newLibraryListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyses",
		Short: "List stored analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			lib, err := openLibrary(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer lib.Close()

			ids, err := lib.AnalysisIDs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(ids) == 0 {
				fmt.Fprintln(out, "no analyses")

				return nil
			}

			tbl := table.NewWriter()
			tbl.SetStyle(table.StyleLight)
			tbl.Style().Options.DrawBorder = false
			tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault
			tbl.AppendHeader(table.Row{"Media item", "Aspects", "Attributes", "Analyzed"})

			for _, id := range ids {
				row, loadErr := lib.Analysis(cmd.Context(), id)
				if loadErr != nil {
					return loadErr
				}

				tbl.AppendRow(table.Row{row.MediaItemID, row.AspectCount, row.AttributeCount, humanize.Time(row.AnalyzedAt)})
			}

			tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d items", len(ids)), "", "", ""})

			fmt.Fprintln(out, tbl.Render())

			return nil
		},
	}
}

func openLibrary(cfg *config.Config, logOut io.Writer) (*library.Library, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	return library.Open(library.Config{DSN: cfg.Library.DSN, Debug: cfg.Library.Debug, Logger: logger})
}
