// Package report derives exports and summaries from the activity log.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

// CSVHeader is the first line of every CSV export.
const CSVHeader = "date,startTime,endTime,durationMinutes,description,tags"

// WriteCSV writes activities as CSV with times rendered in loc. Description
// and tags are always quoted; tags are joined with ", ".
func WriteCSV(w io.Writer, activities []storage.Activity, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, CSVHeader); err != nil {
		return err
	}
	for _, a := range activities {
		start := a.StartTime.In(loc)
		end := a.EndTime.In(loc)
		_, err := fmt.Fprintf(bw, "%s,%s,%s,%.2f,%s,%s\n",
			start.Format("2006-01-02"),
			start.Format("15:04:05"),
			end.Format("15:04:05"),
			a.Duration().Minutes(),
			quote(a.Description),
			quote(strings.Join(a.Tags, ", ")),
		)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
