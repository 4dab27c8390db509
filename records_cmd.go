package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"

	"github.com/voxcache/voxcache/internal/cache"
)

const maxTextWidth = 40

var recordsJSON bool

var recordsCmd = &cobra.Command{
	Use:     "records",
	Short:   "List cached voices",
	Long:    paragraph(fmt.Sprintf("\n%s every cached voice with its effects and how often it was served.", keyword("List"))),
	Example: paragraph("voxcache records\nvoxcache records --json"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ix, err := openIndex(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := ix.Close(); err != nil {
				log.Error("Unable to close voice index", "err", err)
			}
		}()

		records := ix.store.Records()
		if recordsJSON {
			return writeRecordsJSON(cmd.OutOrStdout(), records)
		}
		return renderRecords(cmd.OutOrStdout(), records)
	},
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
}

func writeRecordsJSON(w io.Writer, records []cache.VoiceRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func renderRecords(w io.Writer, records []cache.VoiceRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("No cached voices yet."))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("NAME", "VOICE", "EFFECTS", "TEXT", "USES", "CREATED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	var total int64
	for _, r := range records {
		effects := strings.Join(r.Effects, ",")
		if effects == "" {
			effects = "-"
		}
		t.Row(
			r.Name,
			r.VoiceID,
			effects,
			truncate.StringWithTail(r.Text, maxTextWidth, "…"),
			strconv.FormatInt(r.UsageCount, 10),
			humanize.Time(r.CreatedAt),
		)
		total += r.UsageCount
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", t.Render(),
		dimStyle.Render(fmt.Sprintf("%d voices, served %s times from cache", len(records), humanize.Comma(total))))
	return err
}
