// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector with Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec
	commandsTotal     *prometheus.CounterVec
	authAttemptsTotal *prometheus.CounterVec

	messagesEnqueuedTotal prometheus.Counter
	messagesDroppedTotal  prometheus.Counter
	queueDepth            prometheus.Gauge

	messagesDeliveredTotal  *prometheus.CounterVec
	recipientsSkippedTotal  prometheus.Counter
	deliveryFailuresTotal   prometheus.Counter
	messagesRetrievedTotal  prometheus.Counter
	messagesDeletedTotal    prometheus.Counter
	retrievedMessageBytes   prometheus.Histogram
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates a collector with all metrics
// registered on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolbox_connections_total",
			Help: "Total number of client connections accepted.",
		}, []string{"protocol"}),
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spoolbox_connections_active",
			Help: "Number of currently active client connections.",
		}, []string{"protocol"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolbox_commands_total",
			Help: "Total number of protocol commands processed.",
		}, []string{"protocol", "command"}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolbox_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"result"}),

		messagesEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_messages_enqueued_total",
			Help: "Total number of messages handed to the delivery queue.",
		}),
		messagesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_messages_dropped_total",
			Help: "Total number of messages rejected or dropped by the delivery queue.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolbox_queue_depth",
			Help: "Number of messages waiting in the delivery queue.",
		}),

		messagesDeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolbox_messages_delivered_total",
			Help: "Total number of messages delivered to local mailboxes.",
		}, []string{"user"}),
		recipientsSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_recipients_skipped_total",
			Help: "Total number of non-local recipients skipped during delivery.",
		}),
		deliveryFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_delivery_failures_total",
			Help: "Total number of per-recipient delivery failures.",
		}),
		messagesRetrievedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_messages_retrieved_total",
			Help: "Total number of messages retrieved over POP3.",
		}),
		messagesDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolbox_messages_deleted_total",
			Help: "Total number of messages marked for deletion over POP3.",
		}),
		retrievedMessageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spoolbox_retrieved_message_bytes",
			Help:    "Size of retrieved messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760},
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.commandsTotal,
		c.authAttemptsTotal,
		c.messagesEnqueuedTotal,
		c.messagesDroppedTotal,
		c.queueDepth,
		c.messagesDeliveredTotal,
		c.recipientsSkippedTotal,
		c.deliveryFailuresTotal,
		c.messagesRetrievedTotal,
		c.messagesDeletedTotal,
		c.retrievedMessageBytes,
	)
	return c
}

func (c *PrometheusCollector) ConnectionOpened(protocol string) {
	c.connectionsTotal.WithLabelValues(protocol).Inc()
	c.connectionsActive.WithLabelValues(protocol).Inc()
}

func (c *PrometheusCollector) ConnectionClosed(protocol string) {
	c.connectionsActive.WithLabelValues(protocol).Dec()
}

func (c *PrometheusCollector) CommandProcessed(protocol, command string) {
	c.commandsTotal.WithLabelValues(protocol, command).Inc()
}

func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) MessageEnqueued() { c.messagesEnqueuedTotal.Inc() }
func (c *PrometheusCollector) MessageDropped()  { c.messagesDroppedTotal.Inc() }

func (c *PrometheusCollector) QueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

func (c *PrometheusCollector) MessageDelivered(user string) {
	c.messagesDeliveredTotal.WithLabelValues(user).Inc()
}

func (c *PrometheusCollector) RecipientSkipped() { c.recipientsSkippedTotal.Inc() }
func (c *PrometheusCollector) DeliveryFailed()   { c.deliveryFailuresTotal.Inc() }

func (c *PrometheusCollector) MessageRetrieved(sizeBytes int64) {
	c.messagesRetrievedTotal.Inc()
	c.retrievedMessageBytes.Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) MessageDeleted() { c.messagesDeletedTotal.Inc() }
