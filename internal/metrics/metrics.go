package metrics

import "expvar"

// 边车与对账进程共用的计数器，经 /debug/vars 暴露
var (
	OrdersSubmitted   = expvar.NewInt("orders_submitted")
	OrdersFailed      = expvar.NewInt("orders_failed")
	FillsReconciled   = expvar.NewInt("fills_reconciled")
	CommandsProcessed = expvar.NewInt("commands_processed")
	CommandsDuplicate = expvar.NewInt("commands_duplicate")
	RateLimitHits     = expvar.NewInt("rate_limit_hits")
	PriceUpdates      = expvar.NewInt("price_updates")
	ReconcileRuns     = expvar.NewInt("reconcile_runs")
	ReconcileExposed  = expvar.NewInt("reconcile_exposed")
)
