package index

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/webarchive/cmd/common"
	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/lookup"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

// TableRenderer prints index entries as a borderless table.
type TableRenderer struct {
	out io.Writer
}

// NewTableRenderer creates a TableRenderer writing to out.
func NewTableRenderer(out io.Writer) *TableRenderer {
	return &TableRenderer{out: out}
}

func (r *TableRenderer) newWriter() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.Style{
		Box: table.BoxStyle{
			PaddingLeft:  "",
			PaddingRight: "  ",
		},
		Options: table.Options{
			DrawBorder:      false,
			SeparateColumns: false,
			SeparateHeader:  false,
			SeparateRows:    false,
		},
	})
	return t
}

// RenderEntries prints at most limit entries (0 = all).
func (r *TableRenderer) RenderEntries(entries []*cdxj.Entry, limit int) {
	t := r.newWriter()
	t.AppendHeader(table.Row{"Timestamp", "Method", "Status", "Mime", "URL", "Locator", "Source"})
	for i, e := range entries {
		if limit > 0 && i >= limit {
			break
		}
		t.AppendRow(entryRow(e))
	}
	t.AppendFooter(table.Row{"", "", "", "", strconv.Itoa(len(entries)) + " entries"})
	t.Render()
}

// RenderMatch prints the capture chosen for a request.
func (r *TableRenderer) RenderMatch(m *lookup.Match) {
	t := r.newWriter()
	t.AppendHeader(table.Row{"Strategy", "Key", "Timestamp", "URL", "Locator"})
	t.AppendRow(table.Row{m.Strategy, m.Key.SURT, m.Entry.Timestamp, m.Entry.URL, m.Entry.Locator.String()})
	t.Render()
}

// RenderRecords prints one row per WARC record.
func (r *TableRenderer) RenderRecords(records []*warc.Record) {
	t := r.newWriter()
	t.AppendHeader(table.Row{"Type", "Date", "Target", "Content-Type", "Bytes"})
	for _, rec := range records {
		t.AppendRow(table.Row{rec.Type(), rec.Headers.Get(warc.FieldDate), rec.TargetURI(), rec.ContentType(), len(rec.Block)})
	}
	t.AppendFooter(table.Row{"", "", strconv.Itoa(len(records)) + " records"})
	t.Render()
}

func entryRow(e *cdxj.Entry) table.Row {
	method := e.Method
	if method == "" {
		method = "GET"
	}
	return table.Row{e.Timestamp, method, e.Status, e.Mime, e.URL, e.Locator.String(), e.Source}
}

// openCollection opens the comma separated container URIs in raw.
func openCollection(ctx context.Context, resolver *storage.Resolver, log logger.Logger, raw string) (*wacz.Collection, error) {
	return wacz.OpenCollection(ctx, resolver, wacz.SplitSources(raw), wacz.ReadOptions{
		Logger: log,
		OnSkippedLine: func(member string, line int, err error) {
			log.Warn("Skipped index line",
				logger.String("member", member),
				logger.Int("line", line),
				logger.Error(err))
		},
	})
}

func runListCmd(cmd *cobra.Command, args []string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return err
	}
	col, err := openCollection(cmd.Context(), deps.Resolver, deps.Logger, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = col.Close() }()

	NewTableRenderer(cmd.OutOrStdout()).RenderEntries(col.Index().Entries(), limit)
	return nil
}

func runLookupCmd(cmd *cobra.Command, args []string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return err
	}
	col, err := openCollection(cmd.Context(), deps.Resolver, deps.Logger, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = col.Close() }()

	m, err := lookup.New(col.Index()).Find(lookup.Request{Method: method, URL: args[1]})
	if err != nil {
		return err
	}
	NewTableRenderer(cmd.OutOrStdout()).RenderMatch(m)
	return nil
}

// ReadRecords decodes every record of a plain or gzip records file.
func ReadRecords(r io.Reader) ([]*warc.Record, error) {
	wr, err := warc.NewReader(r)
	if err != nil {
		return nil, err
	}
	var records []*warc.Record
	for {
		rec, err := wr.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

func runRecordsCmd(cmd *cobra.Command, args []string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return err
	}
	src, err := deps.Resolver.Open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	records, err := ReadRecords(storage.Stream(src))
	if err != nil {
		deps.Logger.Warn("Stopped reading records", logger.URI(args[0]), logger.Int("read", len(records)), logger.Error(err))
	}
	NewTableRenderer(cmd.OutOrStdout()).RenderRecords(records)
	return err
}
