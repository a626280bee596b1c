package list

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"twittersphere/internal/spheredb"
)

// Run prints a summary of the store at dbPath: schema version, the most recent
// collection contexts and row counts per table.
func Run(ctx context.Context, out io.Writer, dbPath string, contexts int) error {
	if contexts <= 0 {
		contexts = 10
	}
	if !fileExists(dbPath) {
		fmt.Fprintf(out, "twittersphere database not found at %s\n", dbPath)
		fmt.Fprintln(out, "Hint: Run 'twittersphere prepare <inputs...> <db>' to create it, or set database_path in ~/.config/twittersphere/config.yaml.")
		return nil
	}

	store, err := spheredb.OpenExisting(ctx, dbPath)
	if err != nil {
		var verr *spheredb.SchemaVersionError
		if errors.As(err, &verr) && verr.Found == 0 {
			fmt.Fprintln(out, "twittersphere database is present but not initialized (missing tables)")
			fmt.Fprintln(out, "Hint: Run 'twittersphere prepare' once to initialize the schema.")
			return nil
		}
		return errors.Wrap(err, "failed opening the twittersphere database")
	}
	defer store.Close()

	fmt.Fprintf(out, "Database: %s\n", dbPath)
	fmt.Fprintf(out, "Schema version: %d\n", spheredb.CurrentSchemaVersion)
	if size, err := spheredb.SizeBytes(ctx, store.DB); err == nil {
		fmt.Fprintf(out, "Size: %s\n", humanize.IBytes(uint64(size)))
	}

	ccs, err := spheredb.Contexts(ctx, store.DB, contexts)
	if err != nil {
		return errors.Wrap(err, "query collection contexts")
	}
	fmt.Fprintf(out, "\nCollection contexts (latest %d):\n", contexts)
	if len(ccs) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, c := range ccs {
		fmt.Fprintf(out, "  %s  %s  (twarc %s)\n", c.RetrievedAt, c.TwitterURL, c.TwarcVersion)
	}

	counts, err := spheredb.TableCounts(ctx, store.DB)
	if err != nil {
		return errors.Wrap(err, "count rows")
	}
	fmt.Fprintln(out, "\nRows per table:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, c := range counts {
		fmt.Fprintf(tw, "  %s\t%s\t\n", c.Table, humanize.Comma(c.Rows))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}
