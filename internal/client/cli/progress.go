package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

// renderProgress draws one byte counter for every transfer whose key starts
// with prefix until updates is closed. It returns the bytes moved. Nothing is
// drawn when no matching transfer reports.
func renderProgress(w io.Writer, description, prefix string, updates <-chan events.TransferProgress) int64 {
	var (
		bar     *progressbar.ProgressBar
		written = make(map[models.ResourceKey]int64)
		sum     int64
	)
	for u := range updates {
		if !strings.HasPrefix(string(u.Key), prefix) {
			continue
		}
		if bar == nil {
			bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(100*time.Millisecond),
			)
		}
		sum += u.Written - written[u.Key]
		written[u.Key] = u.Written
		_ = bar.Set64(sum)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(w)
	}
	return sum
}
