// Package metrics exports engine and keeper activity to Prometheus.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

const namespace = "perpetuals"

// Recorder implements perp.Observer on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	openInterest  *prometheus.GaugeVec
	owned         *prometheus.GaugeVec
	price         *prometheus.GaugeVec
	poolAUM       *prometheus.GaugeVec
	sweeps        prometheus.Counter
	sweepOutcomes *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and result.",
		}, []string{"op", "result"}),
		openInterest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_interest_usd",
			Help:      "Open interest per custody and side in USD.",
		}, []string{"pool", "mint", "side"}),
		owned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_owned_tokens",
			Help:      "Tokens owned by the pool per custody.",
		}, []string{"pool", "mint"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_price_usd",
			Help:      "Last stored custody price in USD.",
		}, []string{"pool", "mint"}),
		poolAUM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_aum_usd",
			Help:      "Assets under management per pool in USD.",
		}, []string{"pool"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "sweeps_total",
			Help:      "Completed keeper sweeps.",
		}),
		sweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "positions_total",
			Help:      "Positions evaluated by the keeper by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.operations, r.openInterest, r.owned, r.price, r.poolAUM, r.sweeps, r.sweepOutcomes)
	return r
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts an operation. Failures are labelled by error kind.
func (r *Recorder) ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = perp.KindOf(err).String()
	}
	r.operations.WithLabelValues(op, result).Inc()
}

// ObserveCustody refreshes the gauges of one custody and its pool.
func (r *Recorder) ObserveCustody(pool model.Pool, custody model.Custody) {
	mint := custody.Mint.Hex()
	r.openInterest.WithLabelValues(pool.Name, mint, model.Long.String()).Set(usd(custody.TradeStats.OILongUSD))
	r.openInterest.WithLabelValues(pool.Name, mint, model.Short.String()).Set(usd(custody.TradeStats.OIShortUSD))
	r.owned.WithLabelValues(pool.Name, mint).Set(scaled(custody.Assets.Owned, custody.Decimals))
	r.price.WithLabelValues(pool.Name, mint).Set(usd(custody.Pricing.CurrentPrice))
	r.poolAUM.WithLabelValues(pool.Name).Set(usd(pool.AumUSD))
}

// ObserveSweep records the outcome counts of one keeper sweep.
func (r *Recorder) ObserveSweep(liquidated, skipped, failed int) {
	r.sweeps.Inc()
	r.sweepOutcomes.WithLabelValues("liquidated").Add(float64(liquidated))
	r.sweepOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	r.sweepOutcomes.WithLabelValues("failed").Add(float64(failed))
}

func usd(v uint64) float64 {
	return scaled(v, model.USDDecimals)
}

func scaled(v uint64, decimals uint8) float64 {
	return float64(v) / math.Pow10(int(decimals))
}

var _ perp.Observer = (*Recorder)(nil)
