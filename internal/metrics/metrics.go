package metrics

import "expvar"

var (
	RefreshRuns      = expvar.NewInt("refresh_runs")
	RefreshErrors    = expvar.NewInt("refresh_errors")
	RefreshStale     = expvar.NewInt("refresh_stale_discarded")
	RefreshSkipped   = expvar.NewInt("refresh_skipped_in_progress")
	StreamReconnects = expvar.NewInt("stream_reconnects")
	TradeEvents      = expvar.NewInt("trade_events")
	HubClients       = expvar.NewInt("hub_clients")
	StoreErrors      = expvar.NewInt("store_errors")
)
