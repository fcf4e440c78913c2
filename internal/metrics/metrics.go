// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts transport frames analyzed, by link kind and message type
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscap_frames_total",
			Help: "Total number of transport frames analyzed",
		},
		[]string{"link", "type"},
	)

	// ProtocolViolationsTotal counts malformed frames rejected by the classifier
	ProtocolViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscap_protocol_violations_total",
			Help: "Total number of malformed transport frames",
		},
		[]string{"link"},
	)

	// ConversationsStartedTotal counts multi-frame assemblies opened by a first frame
	ConversationsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscap_conversations_started_total",
			Help: "Total number of multi-frame conversations started",
		},
	)

	// ConversationErrorsTotal counts conversations poisoned by the window check
	ConversationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscap_conversation_errors_total",
			Help: "Total number of conversations marked as errored",
		},
	)

	// MessagesReassembledTotal counts completed multi-frame messages
	MessagesReassembledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscap_messages_reassembled_total",
			Help: "Total number of fully reassembled messages",
		},
	)

	// CaptureFramesSkippedTotal counts capture records not handed to the core
	CaptureFramesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscap_capture_frames_skipped_total",
			Help: "Total number of capture records skipped before analysis",
		},
		[]string{"reason"},
	)
)
