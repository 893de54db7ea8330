package execution

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/betbot/hedgex/internal/domain"
)

// SelectByOrderID 过滤出属于指定订单的成交记录（订单号归一化比较）。
func SelectByOrderID(records []domain.FillRecord, orderID string) []domain.FillRecord {
	want := domain.NormalizeOrderID(orderID)
	if want == "" {
		return nil
	}
	var out []domain.FillRecord
	for _, r := range records {
		if domain.NormalizeOrderID(r.OrderID) == want {
			out = append(out, r)
		}
	}
	return out
}

// SelectLatestOrder 时间窗兜底路径：按 createdTime 倒序，取最新一条的
// orderId，把共享该 id 的所有记录作为候选集。
//
// 这是 best-effort 启发式：交易所在没拿到 order id 时不支持按 id 过滤，
// 只能假定"窗口内最新的订单就是刚才那笔"。并发下单时可能错配，
// 调用方应保证同一标的同一时刻只有一笔在途市价单。
//
// 有的查询路径返回的流水根本不带 orderId；此时最新记录的 id 为空，
// 所有同样无 id 的记录归为一组——它们就是本次要对账的成交。
func SelectLatestOrder(records []domain.FillRecord) (string, []domain.FillRecord) {
	if len(records) == 0 {
		return "", nil
	}
	sorted := make([]domain.FillRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedTimeMs > sorted[j].CreatedTimeMs
	})
	latest := sorted[0].OrderID
	want := domain.NormalizeOrderID(latest)
	var out []domain.FillRecord
	for _, r := range sorted {
		if domain.NormalizeOrderID(r.OrderID) == want {
			out = append(out, r)
		}
	}
	return latest, out
}

// Aggregate 把同一逻辑订单的成交记录累加成一个结果。
// 必须累加所有记录而不是挑"那一笔"——薄盘下市价单经常被拆成多笔。
// avgPrice 是成交额加权均价 Σ(size·price)/Σsize，不是算术平均。
func Aggregate(records []domain.FillRecord) domain.ReconciledFill {
	if len(records) == 0 {
		return domain.ReconciledFill{Filled: false}
	}

	totalSize := decimal.Zero
	totalValue := decimal.Zero
	totalFee := decimal.Zero
	totalPnl := decimal.Zero

	for _, r := range records {
		size := decimal.NewFromFloat(r.Size)
		price := decimal.NewFromFloat(r.Price)
		totalSize = totalSize.Add(size)
		totalValue = totalValue.Add(size.Mul(price))
		totalFee = totalFee.Add(decimal.NewFromFloat(r.Fee))
		totalPnl = totalPnl.Add(decimal.NewFromFloat(r.RealizedPnl))
	}

	avg := decimal.Zero
	if totalSize.IsPositive() {
		avg = totalValue.Div(totalSize)
	}

	return domain.ReconciledFill{
		Filled:    true,
		AvgPrice:  avg.InexactFloat64(),
		TotalSize: totalSize.InexactFloat64(),
		TotalFee:  totalFee.InexactFloat64(),
		TotalPnl:  totalPnl.InexactFloat64(),
		Records:   len(records),
	}
}
