package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 机器人监控指标。
type Metrics struct {
	// 事件指标
	EventsTotal    *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec

	// 服务商调用指标
	ProviderRequests *prometheus.CounterVec

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesDeleted prometheus.Counter

	// 群发指标
	BroadcastsSent prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics 返回进程级单例指标集。
//
// promauto 会把指标注册到默认 Registry，重复注册会 panic，
// 因此这里只初始化一次。
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailbot_events_total",
				Help: "Total inbound events by type",
			}, []string{"type"}),

			EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailbot_events_rejected_total",
				Help: "Events rejected by the middleware pipeline",
			}, []string{"reason"}),

			ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailbot_provider_requests_total",
				Help: "Provider API calls by operation and outcome",
			}, []string{"operation", "outcome"}),

			MailboxesCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailbot_mailboxes_created_total",
				Help: "Mailboxes provisioned successfully",
			}),

			MailboxesDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailbot_mailboxes_deleted_total",
				Help: "Mailboxes deleted on user request",
			}),

			BroadcastsSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailbot_broadcasts_total",
				Help: "Admin broadcasts performed",
			}),
		}
	})

	return metrics
}
