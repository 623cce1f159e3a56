// Package metrics exposes trader counters and gauges in Prometheus format:
//
//	dcatrader_orders_total{side,tag}          orders accepted by the venue
//	dcatrader_order_failures_total{side,tag}  rejected or failed orders
//	dcatrader_decisions_total{action}         signal log decisions
//	dcatrader_account_value_usd               total account value
//	dcatrader_buying_power_usd                spendable USD
//	dcatrader_realized_profit_usd             lifetime realized profit
//	dcatrader_tick_duration_seconds           tick latency
//	dcatrader_tick_errors_total               ticks aborted by an error
//	dcatrader_dca_stage{symbol}               DCA stages taken in the current trade
//	dcatrader_trail_active{symbol}            1 while the trailing exit is armed
package metrics

import (
	"context"
	"dcatrader/internal/logger"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcatrader_orders_total",
			Help: "Orders accepted by the venue",
		},
		[]string{"side", "tag"},
	)

	orderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcatrader_order_failures_total",
			Help: "Orders rejected or failed",
		},
		[]string{"side", "tag"},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcatrader_decisions_total",
			Help: "Decisions written to the signal log",
		},
		[]string{"action"},
	)

	accountValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dcatrader_account_value_usd",
		Help: "Total account value in USD",
	})

	buyingPower = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dcatrader_buying_power_usd",
		Help: "Spendable USD",
	})

	realizedProfit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dcatrader_realized_profit_usd",
		Help: "Lifetime realized profit in USD",
	})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcatrader_tick_duration_seconds",
		Help:    "Duration of one engine tick",
		Buckets: prometheus.DefBuckets,
	})

	tickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dcatrader_tick_errors_total",
		Help: "Ticks aborted by an error",
	})

	dcaStage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dcatrader_dca_stage",
			Help: "DCA stages taken in the current trade",
		},
		[]string{"symbol"},
	)

	trailActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dcatrader_trail_active",
			Help: "1 while the trailing exit is armed",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(orders, orderFailures, decisions)
	prometheus.MustRegister(accountValue, buyingPower, realizedProfit)
	prometheus.MustRegister(tickDuration, tickErrors)
	prometheus.MustRegister(dcaStage, trailActive)
}

func IncOrder(side, tag string)        { orders.WithLabelValues(side, tag).Inc() }
func IncOrderFailure(side, tag string) { orderFailures.WithLabelValues(side, tag).Inc() }
func IncDecision(action string)        { decisions.WithLabelValues(action).Inc() }
func IncTickError()                    { tickErrors.Inc() }

func ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

func SetAccount(total, power, realized float64) {
	accountValue.Set(total)
	buyingPower.Set(power)
	realizedProfit.Set(realized)
}

func SetPosition(symbol string, stage int, trailing bool) {
	dcaStage.WithLabelValues(symbol).Set(float64(stage))
	v := 0.0
	if trailing {
		v = 1
	}
	trailActive.WithLabelValues(symbol).Set(v)
}

// DropPosition removes the per-symbol series of a position that is no longer held.
func DropPosition(symbol string) {
	dcaStage.DeleteLabelValues(symbol)
	trailActive.DeleteLabelValues(symbol)
}

// Handler serves /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve runs the metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("metrics").WithField("addr", addr).Info("Сервер метрик запущен.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
