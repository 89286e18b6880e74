package orderbook

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

const benchLevels = 256

func benchPrice(i int) decimal.Decimal {
	return decimal.NewFromInt(int64(10000 + i%benchLevels))
}

func BenchmarkInsert(b *testing.B) {
	book := NewBook()
	orders := make([]*order.Order, b.N)
	for i := 0; i < b.N; i++ {
		o, _ := order.NewLimit("LAND-A", "bench-"+strconv.Itoa(i%8), order.Buy,
			decimal.NewFromInt(1), benchPrice(i), order.GTC)
		orders[i] = o
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.Insert(orders[i])
	}
}

func BenchmarkRemove(b *testing.B) {
	book := NewBook()
	ids := make([]uuid.UUID, b.N)
	for i := 0; i < b.N; i++ {
		o, _ := order.NewLimit("LAND-A", "bench", order.Buy,
			decimal.NewFromInt(1), benchPrice(i), order.GTC)
		_ = book.Insert(o)
		ids[i] = o.ID
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.Remove(ids[i])
	}
}

func BenchmarkBestBid(b *testing.B) {
	book := NewBook()
	for i := 0; i < benchLevels; i++ {
		o, _ := order.NewLimit("LAND-A", "bench", order.Buy,
			decimal.NewFromInt(1), benchPrice(i), order.GTC)
		_ = book.Insert(o)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.BestBid()
	}
}

func BenchmarkFillAtBest(b *testing.B) {
	book := NewBook()
	qty := decimal.NewFromInt(1)
	for i := 0; i < b.N; i++ {
		o, _ := order.NewLimit("LAND-A", "bench", order.Sell,
			qty, benchPrice(i), order.GTC)
		_ = book.Insert(o)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lvl := book.BestAsk()
		if lvl == nil {
			break
		}
		front := lvl.Head()
		_, _ = book.Fill(front.ID, qty)
	}
}
