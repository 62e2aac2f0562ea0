package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 邀请接受结果标签
const (
	AcceptCreated         = "created"          // 本次请求赢得 CAS 并创建关系
	AcceptIdempotent      = "idempotent"       // 重试命中已有关系
	AcceptRepaired        = "repaired"         // 邀请已消费但关系缺失，本次补建
	AcceptNotFound        = "not_found"
	AcceptExpired         = "expired"
	AcceptAlreadyAccepted = "already_accepted"
	AcceptError           = "error"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	InvitesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invites_created_total",
		Help: "Invites issued by teachers.",
	})

	InviteAccepts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite_accept_total",
			Help: "Invite accept attempts by outcome.",
		},
		[]string{"outcome"},
	)

	EnrollmentsReconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_reconciled_total",
		Help: "Enrollments created by the reconciliation pass for accepted invites.",
	})

	ProfilesProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profiles_provisioned_total",
			Help: "Profiles created on demand, by source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		InvitesCreated,
		InviteAccepts,
		EnrollmentsReconciled,
		ProfilesProvisioned,
	)
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
