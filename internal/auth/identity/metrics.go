package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gesahni_auth_resolutions_total",
		Help: "Identity resolutions by terminal outcome and transport",
	}, []string{"outcome", "transport"})

	mSilentRefresh = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesahni_auth_silent_refresh_total",
		Help: "Access tokens minted through the silent refresh path",
	})

	mFamilyMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesahni_auth_family_mismatch_total",
		Help: "Refresh attempts rejected for family mismatch or missing session record",
	})

	mDecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gesahni_auth_decode_failures_total",
		Help: "Token decode failures by classified kind",
	}, []string{"kind"})

	mStoreDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesahni_auth_store_degraded_total",
		Help: "Resolutions that hit an unreachable session store",
	})
)
