// Package source contains the marketplace connectors. Each adapter yields a
// lazy, finite sequence of normalized listing records; the reconciliation
// engine only ever sees the listing.SourceAdapter interface.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/urlwiz/domainwizard/features/listing"
)

var dollarPattern = regexp.MustCompile(`^\$(\d+)`)

// parseDollar extracts the integer amount from strings like "$1234". Returns
// nil when the string carries no parsable amount.
func parseDollar(s string) *int64 {
	m := dollarPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseEndTime accepts the ISO timestamps the marketplaces publish, with or
// without a zone suffix, and pins them to UTC.
func parseEndTime(s string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Defaults returns the adapters a full pipeline run reconciles, in order.
func Defaults(timeout time.Duration) []listing.SourceAdapter {
	return []listing.SourceAdapter{
		NewGodaddy(timeout),
		NewNamecheap(timeout),
	}
}

// fetchToTemp downloads a dataset to a temp file and returns it positioned
// at the start. Marketplace dumps are too large to hold in memory and the
// zip reader needs random access anyway.
func fetchToTemp(ctx context.Context, client *http.Client, url string) (*os.File, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("downloading %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "dataset-*.download")
	if err != nil {
		return nil, 0, err
	}
	os.Remove(tmp.Name()) // unlink now, the fd keeps it alive

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return nil, 0, fmt.Errorf("downloading %s: %w", url, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, 0, err
	}
	return tmp, size, nil
}
