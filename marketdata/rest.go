// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeremycod/bcco/errs"
)

// RESTProvider implements Provider against a JSON pricing vendor. The
// response shape is validated at this boundary: rows missing a parseable
// close price surface as Validation rather than leaking zero values into
// the price store.
type RESTProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRESTProvider(baseURL, apiKey string) *RESTProvider {
	return &RESTProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type restPriceRow struct {
	Date  string   `json:"date"`
	Close *float64 `json:"close"`
}

type restHistoryResponse struct {
	Ticker string         `json:"ticker"`
	Prices []restPriceRow `json:"prices"`
}

// FetchDailyHistory pulls up to days of daily closes for ticker.
func (p *RESTProvider) FetchDailyHistory(ctx context.Context, ticker string, days int) ([]DailyPrice, error) {
	url := fmt.Sprintf("%s/v1/daily/%s?days=%d&apikey=%s", p.baseURL, ticker, days, p.apiKey)
	body, err := p.get(ctx, url, ticker)
	if err != nil {
		return nil, err
	}

	var decoded restHistoryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "decode history response").WithField("ticker", ticker)
	}

	out := make([]DailyPrice, 0, len(decoded.Prices))
	for _, row := range decoded.Prices {
		if row.Close == nil {
			return nil, errs.New(errs.Validation, "price row missing close").
				WithField("ticker", ticker).WithField("date", row.Date)
		}
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, errs.Wrap(errs.Validation, err, "unparseable price date").WithField("ticker", ticker)
		}
		out = append(out, DailyPrice{Ticker: ticker, Date: date, Close: *row.Close})
	}
	return out, nil
}

// FetchLatest pulls the single most recent close for ticker.
func (p *RESTProvider) FetchLatest(ctx context.Context, ticker string) (DailyPrice, error) {
	prices, err := p.FetchDailyHistory(ctx, ticker, 1)
	if err != nil {
		return DailyPrice{}, err
	}
	if len(prices) == 0 {
		return DailyPrice{}, errs.New(errs.NotFound, "provider returned no prices").WithField("ticker", ticker)
	}
	return prices[len(prices)-1], nil
}

func (p *RESTProvider) get(ctx context.Context, url, ticker string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "build provider request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "provider request failed").WithField("ticker", ticker)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errs.New(errs.NotFound, "provider has no such ticker").WithField("ticker", ticker)
	case http.StatusTooManyRequests:
		return nil, errs.New(errs.RateLimited, "provider rate limited").WithField("ticker", ticker)
	default:
		return nil, errs.New(errs.ExternalProvider, fmt.Sprintf("provider returned status %d", resp.StatusCode)).
			WithField("ticker", ticker)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "read provider response").WithField("ticker", ticker)
	}
	return body, nil
}
