package metrics

import "github.com/prometheus/client_golang/prometheus"

// SignatureMetrics mirrors the signature-manager's atomic verification
// counters into Prometheus so aggregate trends are observable alongside
// the in-process atomic counters used for amortization decisions. The
// signature manager increments the failure counters once per failure and
// the two success counters once per 1000 successes.
type SignatureMetrics struct {
	externalClientReqSigVerificationFailed   prometheus.Counter
	externalClientReqSigVerified             prometheus.Counter
	replicaSigVerificationFailed             prometheus.Counter
	replicaSigVerified                       prometheus.Counter
	sigVerificationFailedOnUnrecognizedParticipantID prometheus.Counter
}

// NewSignatureMetrics registers the signature-manager counters against reg.
func NewSignatureMetrics(reg *prometheus.Registry) *SignatureMetrics {
	m := &SignatureMetrics{
		externalClientReqSigVerificationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftcore_external_client_req_sig_verification_failed_total",
			Help: "Total external-client request signature verifications that failed.",
		}),
		externalClientReqSigVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftcore_external_client_req_sig_verified_total",
			Help: "External-client request signature verifications that succeeded, in units of 1000.",
		}),
		replicaSigVerificationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftcore_replica_sig_verification_failed_total",
			Help: "Total replica signature verifications that failed.",
		}),
		replicaSigVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftcore_replica_sig_verified_total",
			Help: "Replica signature verifications that succeeded, in units of 1000.",
		}),
		sigVerificationFailedOnUnrecognizedParticipantID: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftcore_sig_verification_failed_unrecognized_participant_total",
			Help: "Total signature verifications rejected because the participant id was unrecognized.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.externalClientReqSigVerificationFailed,
			m.externalClientReqSigVerified,
			m.replicaSigVerificationFailed,
			m.replicaSigVerified,
			m.sigVerificationFailedOnUnrecognizedParticipantID,
		)
	}
	return m
}

func (m *SignatureMetrics) IncExternalClientReqSigVerificationFailed() {
	m.externalClientReqSigVerificationFailed.Inc()
}
func (m *SignatureMetrics) IncExternalClientReqSigVerified() { m.externalClientReqSigVerified.Inc() }
func (m *SignatureMetrics) IncReplicaSigVerificationFailed()  { m.replicaSigVerificationFailed.Inc() }
func (m *SignatureMetrics) IncReplicaSigVerified()            { m.replicaSigVerified.Inc() }
func (m *SignatureMetrics) IncSigVerificationFailedOnUnrecognizedParticipantID() {
	m.sigVerificationFailedOnUnrecognizedParticipantID.Inc()
}
