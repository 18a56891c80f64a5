package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/urlwiz/domainwizard/features/listing"
)

const namecheapURL = "https://nc-aftermarket-www-production.s3.amazonaws.com/reports/Namecheap_Market_Sales.csv"

// Namecheap streams the aftermarket sales CSV report. Auction listings only.
type Namecheap struct {
	url    string
	client *http.Client
}

func NewNamecheap(timeout time.Duration) *Namecheap {
	return &Namecheap{
		url:    namecheapURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *Namecheap) Name() string { return "namecheap" }

func (n *Namecheap) Accept(url string) bool { return !listing.LowQuality(url) }

// SetURL overrides the report location, for tests.
func (n *Namecheap) SetURL(url string) { n.url = url }

func (n *Namecheap) Listings(ctx context.Context) iter.Seq2[listing.Record, error] {
	return func(yield func(listing.Record, error) bool) {
		slog.InfoContext(ctx, "downloading namecheap market report")
		tmp, _, err := fetchToTemp(ctx, n.client, n.url)
		if err != nil {
			yield(listing.Record{}, err)
			return
		}
		defer tmp.Close()

		reader := csv.NewReader(tmp)
		header, err := reader.Read()
		if err != nil {
			yield(listing.Record{}, fmt.Errorf("reading namecheap report header: %w", err))
			return
		}
		col := make(map[string]int, len(header))
		for i, name := range header {
			col[strings.TrimSpace(name)] = i
		}

		for {
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(listing.Record{}, fmt.Errorf("reading namecheap report: %w", err))
				return
			}
			if !yield(namecheapRecord(row, col), nil) {
				return
			}
		}
	}
}

func namecheapRecord(row []string, col map[string]int) listing.Record {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	auctionType := "Bid"
	rec := listing.Record{
		URL:            strings.ToLower(field("name")),
		Link:           field("url"),
		AuctionType:    &auctionType,
		AuctionEndTime: parseEndTime(field("endDate")),
		Price:          parseDecimal(field("price")),
		NumberOfBids:   parseDecimal(field("bidCount")),
	}

	// Valuation falls back from last sale to the appraisal estimate.
	if v := parseDecimal(field("lastSoldPrice")); v != nil {
		rec.Valuation = v
	} else if v := parseDecimal(field("estibotValue")); v != nil {
		rec.Valuation = v
	}

	if registered := parseEndTime(field("registeredDate")); registered != nil {
		years := int64(time.Since(*registered).Hours() / (24 * 365))
		rec.DomainAge = &years
	}
	return rec
}

// parseDecimal reads the report's numeric strings ("123", "123.00") as
// truncated integers.
func parseDecimal(s string) *int64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v := int64(f)
	return &v
}
