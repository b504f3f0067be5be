// Package cex implements price sources backed by centralized exchange and
// market data APIs.
package cex

import (
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

func init() {
	sources.Register("cex.binance", NewBinanceSource)
	sources.Register("cex.coingecko", NewCoinGeckoSource)
	sources.Register("cex.kraken", NewKrakenSource)
	sources.Register("cex.coinmarketcap", NewCoinMarketCapSource)
}
