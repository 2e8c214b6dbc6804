// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(method string, success bool)
	RecordSignup()
	RecordTokenReissue(success bool)
	RecordTodoOperation(operation string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRefreshTokensPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	signups        prometheus.Counter
	reissues       *prometheus.CounterVec
	todoOps        *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	tokensPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_login_total",
			Help: "ログイン試行の合計数（方式・結果別）",
		}, []string{"method", "result"}),
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_signup_total",
			Help: "会員登録の合計数",
		}),
		reissues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_token_reissue_total",
			Help: "トークン再発行の合計数（結果別）",
		}, []string{"result"}),
		todoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_todo_operations_total",
			Help: "Todo操作の合計数（操作種別別）",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoman_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_refresh_tokens_purged_total",
			Help: "クリーンアップで削除された期限切れリフレッシュトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.signups,
		c.reissues,
		c.todoOps,
		c.httpStatus,
		c.requestLatency,
		c.tokensPurged,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordLogin はログイン試行を記録する。methodは"local"・"google"・"kakao"のいずれか。
func (c *Collector) RecordLogin(method string, success bool) {
	c.logins.WithLabelValues(method, resultLabel(success)).Inc()
}

// RecordSignup は会員登録を記録する。
func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

// RecordTokenReissue はトークン再発行を記録する。
func (c *Collector) RecordTokenReissue(success bool) {
	c.reissues.WithLabelValues(resultLabel(success)).Inc()
}

// RecordTodoOperation はTodo操作を記録する。
func (c *Collector) RecordTodoOperation(operation string) {
	c.todoOps.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRefreshTokensPurged は削除された期限切れトークン数を記録する。
func (c *Collector) RecordRefreshTokensPurged(count int64) {
	c.tokensPurged.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordLogin(string, bool) {}
func (NopCollector) RecordSignup() {}
func (NopCollector) RecordTokenReissue(bool) {}
func (NopCollector) RecordTodoOperation(string) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordRefreshTokensPurged(int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewHTTPMiddleware はレスポンスのステータスコードとレイテンシを記録するミドルウェアを返す。
func NewHTTPMiddleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.status)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
