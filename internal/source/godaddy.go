package source

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/urlwiz/domainwizard/features/listing"
)

const godaddyURL = "https://inventory.auctions.godaddy.com/all_listings.json.zip"

// Godaddy streams the GoDaddy auction inventory, a zip archive holding one
// JSON document of the shape {"data": [listing, ...]}.
type Godaddy struct {
	url    string
	client *http.Client
}

func NewGodaddy(timeout time.Duration) *Godaddy {
	return &Godaddy{
		url:    godaddyURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *Godaddy) Name() string { return "godaddy" }

func (g *Godaddy) Accept(url string) bool { return !listing.LowQuality(url) }

// SetURL overrides the inventory location, for tests.
func (g *Godaddy) SetURL(url string) { g.url = url }

type godaddyItem struct {
	DomainName            string `json:"domainName"`
	Link                  string `json:"link"`
	AuctionType           string `json:"auctionType"`
	AuctionEndTime        string `json:"auctionEndTime"`
	Price                 string `json:"price"`
	NumberOfBids          *int64 `json:"numberOfBids"`
	DomainAge             *int64 `json:"domainAge"`
	Pageviews             *int64 `json:"pageviews"`
	Valuation             string `json:"valuation"`
	MonthlyParkingRevenue string `json:"monthlyParkingRevenue"`
	IsAdult               *bool  `json:"isAdult"`
}

func (it godaddyItem) record() listing.Record {
	rec := listing.Record{
		URL:                   strings.ToLower(it.DomainName),
		Link:                  it.Link,
		NumberOfBids:          it.NumberOfBids,
		DomainAge:             it.DomainAge,
		Pageviews:             it.Pageviews,
		IsAdult:               it.IsAdult,
		Price:                 parseDollar(it.Price),
		Valuation:             parseDollar(it.Valuation),
		MonthlyParkingRevenue: parseDollar(it.MonthlyParkingRevenue),
		AuctionEndTime:        parseEndTime(it.AuctionEndTime),
	}
	if it.AuctionType != "" {
		rec.AuctionType = &it.AuctionType
	}
	return rec
}

// Listings downloads and extracts the inventory on first iteration, then
// yields records one by one. The sequence is finite and not restartable.
func (g *Godaddy) Listings(ctx context.Context) iter.Seq2[listing.Record, error] {
	return func(yield func(listing.Record, error) bool) {
		slog.InfoContext(ctx, "downloading godaddy auction inventory")
		tmp, size, err := fetchToTemp(ctx, g.client, g.url)
		if err != nil {
			yield(listing.Record{}, err)
			return
		}
		defer tmp.Close()

		archive, err := zip.NewReader(tmp, size)
		if err != nil {
			yield(listing.Record{}, fmt.Errorf("opening godaddy archive: %w", err))
			return
		}
		if len(archive.File) != 1 {
			yield(listing.Record{}, fmt.Errorf("godaddy archive holds %d files, expected 1", len(archive.File)))
			return
		}
		file, err := archive.File[0].Open()
		if err != nil {
			yield(listing.Record{}, err)
			return
		}
		defer file.Close()

		dec := json.NewDecoder(file)
		if err := seekDataArray(dec); err != nil {
			yield(listing.Record{}, fmt.Errorf("parsing godaddy inventory: %w", err))
			return
		}
		for dec.More() {
			var item godaddyItem
			if err := dec.Decode(&item); err != nil {
				yield(listing.Record{}, fmt.Errorf("parsing godaddy inventory: %w", err))
				return
			}
			if !yield(item.record(), nil) {
				return
			}
		}
	}
}

// seekDataArray advances the decoder past `{"data": [`.
func seekDataArray(dec *json.Decoder) error {
	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if key == "data" {
			break
		}
		// skip this key's value
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("data is not an array")
	}
	return nil
}
