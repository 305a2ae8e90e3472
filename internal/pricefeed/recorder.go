package pricefeed

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"
)

// InfluxRecorder writes every fetched batch as "price" points tagged by
// symbol, giving the dashboard a price history without another poller.
type InfluxRecorder struct {
	writeAPI api.WriteAPIBlocking
}

// NewInfluxRecorder wraps a blocking write API for one org/bucket.
func NewInfluxRecorder(writeAPI api.WriteAPIBlocking) *InfluxRecorder {
	return &InfluxRecorder{writeAPI: writeAPI}
}

func (r *InfluxRecorder) Record(ctx context.Context, prices map[string]decimal.Decimal, at time.Time) error {
	if len(prices) == 0 {
		return nil
	}
	return r.writeAPI.WritePoint(ctx, Points(prices, at)...)
}

// Points converts a price batch to line-protocol points.
func Points(prices map[string]decimal.Decimal, at time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(prices))
	for symbol, price := range prices {
		f, _ := price.Float64()
		points = append(points, influxdb2.NewPoint(
			"price",
			map[string]string{"symbol": symbol},
			map[string]interface{}{"price": f},
			at,
		))
	}
	return points
}
