// Package restsnapshot implements validator.SnapshotProvider on top of the
// platform's resilient REST client (pkg/http), giving the orderbook validator's post-reconnect
// cooldown path a real HTTP-backed refresh instead of only
// the venue.Adapter's streamed book. Exchange-specific parsing is still an
// external collaborator's concern; this package only owns the generic
// fetch-and-decode shape, parameterized by a Decoder per venue's own wire
// format.
package restsnapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	httpclient "github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/http"
)

// Decoder turns one venue's raw orderbook JSON payload into the shared
// domain.OrderbookSnapshot shape. A real deployment supplies one Decoder
// per venue (field names and price/size encoding differ per exchange).
type Decoder func(venue domain.Venue, symbol string, body []byte) (domain.OrderbookSnapshot, error)

// Provider fetches a fresh orderbook snapshot over REST for one venue.
type Provider struct {
	venue  domain.Venue
	client *httpclient.Client
	path   string
	decode Decoder
}

// New builds a Provider for one venue. path is the REST endpoint template
// with a single "%s" placeholder for the symbol (e.g. "/api/v1/depth?symbol=%s").
func New(venue domain.Venue, client *httpclient.Client, path string, decode Decoder) *Provider {
	return &Provider{venue: venue, client: client, path: path, decode: decode}
}

// FetchOrderbook implements validator.SnapshotProvider.
func (p *Provider) FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf(p.path, symbol), map[string]string{
		"limit": fmt.Sprintf("%d", depth),
	})
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("fetching orderbook for %s/%s: %w", p.venue, symbol, err)
	}
	snapshot, err := p.decode(p.venue, symbol, body)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("decoding orderbook for %s/%s: %w", p.venue, symbol, err)
	}
	return snapshot, nil
}

// GenericDecoder parses the common {bids: [[price, size], ...], asks: [...]}
// shape a number of venues use verbatim, timestamping the snapshot at
// decode time since most REST depth endpoints don't echo one back.
func GenericDecoder() Decoder {
	return func(venue domain.Venue, symbol string, body []byte) (domain.OrderbookSnapshot, error) {
		var raw struct {
			Bids [][2]string `json:"bids"`
			Asks [][2]string `json:"asks"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return domain.OrderbookSnapshot{}, err
		}
		snapshot := domain.OrderbookSnapshot{
			Symbol:    symbol,
			Venue:     venue,
			Timestamp: time.Now(),
		}
		for _, lvl := range raw.Bids {
			level, err := parseLevel(lvl)
			if err != nil {
				return domain.OrderbookSnapshot{}, err
			}
			snapshot.Bids = append(snapshot.Bids, level)
		}
		for _, lvl := range raw.Asks {
			level, err := parseLevel(lvl)
			if err != nil {
				return domain.OrderbookSnapshot{}, err
			}
			snapshot.Asks = append(snapshot.Asks, level)
		}
		return snapshot, nil
	}
}

func parseLevel(raw [2]string) (domain.OrderbookLevel, error) {
	price, err := parseDecimal(raw[0])
	if err != nil {
		return domain.OrderbookLevel{}, err
	}
	size, err := parseDecimal(raw[1])
	if err != nil {
		return domain.OrderbookLevel{}, err
	}
	return domain.OrderbookLevel{Price: price, Size: size}, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}
