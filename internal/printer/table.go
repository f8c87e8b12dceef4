package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/cartpool/internal/model"
)

// TablePrinter prints cartpool information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTasks prints tasks in a table format.
func (t *TablePrinter) PrintTasks(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSITE\tSIZE\tURL\tCREATED")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", task.ID, task.SiteName, dash(task.Size), task.URL, TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintProxies prints proxies in a table format, credentials are redacted.
func (t *TablePrinter) PrintProxies(proxies []model.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tPROXY\tUSED\tCREATED")
	for _, p := range proxies {
		used := "no"
		if p.HasBeenUsed {
			used = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Redacted(), used, TimeAgo(p.CreatedAt))
	}

	return nil
}

// PrintSessions prints the active browser sessions in a table format.
func (t *TablePrinter) PrintSessions(sessions []model.ActiveSession) error {
	if len(sessions) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TASK\tBACKEND\tPROXY\tSTARTED\tHOLD\tDEBUG URL")
	for _, s := range sessions {
		hold := "-"
		if s.HoldUntil != nil {
			hold = TimeLeft(*s.HoldUntil)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.TaskID,
			s.Backend,
			dash(s.ProxyID),
			TimeAgo(s.StartedAt),
			hold,
			dash(s.DebugURL),
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
