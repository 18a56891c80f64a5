package listing

import (
	"regexp"
	"time"
)

// Listing is one domain name offered for sale on one marketplace. The URL is
// globally unique across sources; the link decides which source owns the row.
type Listing struct {
	ID                    int64      `json:"id"`
	URL                   string     `json:"url"`
	Link                  string     `json:"link"`
	AuctionType           *string    `json:"auction_type,omitempty"`
	AuctionEndTime        *time.Time `json:"auction_end_time,omitempty"`
	Price                 *int64     `json:"price,omitempty"`
	NumberOfBids          *int64     `json:"number_of_bids,omitempty"`
	DomainAge             *int64     `json:"domain_age,omitempty"`
	Pageviews             *int64     `json:"pageviews,omitempty"`
	Valuation             *int64     `json:"valuation,omitempty"`
	MonthlyParkingRevenue *int64     `json:"monthly_parking_revenue,omitempty"`
	IsAdult               *bool      `json:"is_adult,omitempty"`
	BatchJobID            *int64     `json:"-"`
}

// Record is a normalized incoming listing as produced by a source adapter.
type Record struct {
	URL                   string
	Link                  string
	AuctionType           *string
	AuctionEndTime        *time.Time
	Price                 *int64
	NumberOfBids          *int64
	DomainAge             *int64
	Pageviews             *int64
	Valuation             *int64
	MonthlyParkingRevenue *int64
	IsAdult               *bool
}

// IDURL is a (listing id, url) pair, the unit handed to the embedding batch
// lifecycle.
type IDURL struct {
	ID  int64
	URL string
}

// VolatileUpdate refreshes the fields that change between sightings of the
// same URL. Identity fields are never touched.
type VolatileUpdate struct {
	ID             int64
	AuctionEndTime *time.Time
	Price          *int64
	Valuation      *int64
	NumberOfBids   *int64
}

// Match is one nearest-neighbor hit for a search embedding. Score is the
// cosine distance reported by the store.
type Match struct {
	ListingID      int64
	URL            string
	Link           string
	Price          *int64
	Valuation      *int64
	AuctionEndTime *time.Time
	Score          float64
}

var lowQualityPattern = regexp.MustCompile(`\d{3,}`)

// LowQuality reports whether a URL looks auto-generated (three or more
// consecutive digits). Such domains are never worth embedding or serving.
func LowQuality(url string) bool {
	return lowQualityPattern.MatchString(url)
}

func (r Record) volatile(id int64) VolatileUpdate {
	return VolatileUpdate{
		ID:             id,
		AuctionEndTime: r.AuctionEndTime,
		Price:          r.Price,
		Valuation:      r.Valuation,
		NumberOfBids:   r.NumberOfBids,
	}
}
