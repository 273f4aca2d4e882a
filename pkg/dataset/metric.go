package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/ngrok/sqlmw"
	"github.com/prometheus/client_golang/prometheus"
)

const instrumentedDriverName = "duckdb-instrumented"

var (
	verbRegex       = regexp.MustCompile(`^\s*(\w+)`)
	duckOpLatency   *prometheus.HistogramVec
	duckOpTotal     *prometheus.CounterVec
	registerDriver  sync.Once
	registerMetrics sync.Once
)

type metricInterceptor struct {
	sqlmw.NullInterceptor
}

func initMetrics() {
	duckOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "duckdb_op_duration_milliseconds",
		Help:      "Time spent on a duckdb operation",
		Subsystem: "statspub",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000},
	},
		[]string{"op", "method"},
	)
	duckOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "duckdb_op_total",
		Help:      "Number of duckdb operations",
		Subsystem: "statspub",
	},
		[]string{"op"},
	)

	prometheus.MustRegister(duckOpLatency)
	prometheus.MustRegister(duckOpTotal)
}

// Open opens a DuckDB database whose operations are counted and timed.
// An empty path opens an in-memory database.
func Open(path string) (*sql.DB, error) {
	registerMetrics.Do(initMetrics)
	registerDriver.Do(func() {
		sql.Register(instrumentedDriverName, sqlmw.Driver(duckdb.Driver{}, &metricInterceptor{}))
	})
	return sql.Open(instrumentedDriverName, path)
}

func (mi *metricInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	defer mi.measure("conn-exec-context", statementVerb(query, "conn-exec-context"), time.Now())
	return conn.ExecContext(ctx, query, args)
}

func (mi *metricInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	defer mi.measure("conn-query-context", statementVerb(query, "conn-query-context"), time.Now())
	rows, err := conn.QueryContext(ctx, query, args)
	return ctx, rows, err
}

func (mi *metricInterceptor) ConnPrepareContext(ctx context.Context, conn driver.ConnPrepareContext, query string) (context.Context, driver.Stmt, error) {
	defer mi.measure("conn-prepare-context", statementVerb(query, "conn-prepare-context"), time.Now())
	stmt, err := conn.PrepareContext(ctx, query)
	return ctx, stmt, err
}

func (mi *metricInterceptor) StmtQueryContext(ctx context.Context, conn driver.StmtQueryContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	defer mi.measure("stmt-query-context", statementVerb(query, "stmt-query-context"), time.Now())
	rows, err := conn.QueryContext(ctx, args)
	return ctx, rows, err
}

func (mi *metricInterceptor) StmtExecContext(ctx context.Context, conn driver.StmtExecContext, query string, args []driver.NamedValue) (driver.Result, error) {
	defer mi.measure("stmt-exec-context", statementVerb(query, "stmt-exec-context"), time.Now())
	return conn.ExecContext(ctx, args)
}

func (mi *metricInterceptor) measure(op, method string, start time.Time) {
	duckOpTotal.With(prometheus.Labels{"op": op}).Inc()
	duckOpLatency.With(prometheus.Labels{
		"op":     op,
		"method": method,
	}).Observe(float64(time.Since(start).Milliseconds()))
}

func statementVerb(query, fallback string) string {
	m := verbRegex.FindStringSubmatch(query)
	if len(m) < 2 {
		return fallback
	}
	return strings.ToLower(m[1])
}
