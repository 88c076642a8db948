// Package fallback decides which encoder to try after a failure.
package fallback

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/metrics"
	"squeeze-worker/pkg/models"
)

// MaxFailures is the consecutive failure count at which an encoder stops
// being usable.
const MaxFailures = 3

// chainPriority orders encoders by general reliability.
var chainPriority = []models.EncoderKind{
	models.NvencH264,
	models.NvencH265,
	models.VideoToolbox,
	models.QsvH264,
	models.QsvH265,
	models.AmfH264,
	models.AmfH265,
	models.Vaapi,
	models.NvencAV1,
	models.QsvAV1,
	models.Software,
}

// same-codec alternatives from other vendors, in preference order
var codecAlternatives = map[models.CodecFamily][]models.EncoderKind{
	models.CodecH264: {models.NvencH264, models.AmfH264, models.QsvH264, models.Vaapi, models.VideoToolbox},
	models.CodecH265: {models.NvencH265, models.AmfH265, models.QsvH265},
	models.CodecAV1:  {models.NvencAV1, models.QsvAV1},
}

// BuildChain filters the fixed priority order down to the available encoders.
func BuildChain(available []models.EncoderKind) []models.EncoderKind {
	present := make(map[models.EncoderKind]bool, len(available))
	for _, k := range available {
		present[k] = true
	}
	chain := make([]models.EncoderKind, 0, len(available))
	for _, k := range chainPriority {
		if present[k] {
			chain = append(chain, k)
		}
	}
	return chain
}

// Policy is the fallback state for one compression session. All methods
// are safe for concurrent use.
//
// Besides failure counts the policy remembers vendors whose errors named
// their own driver stack. The chain walk passes over those vendors until one
// of their encoders succeeds again.
type Policy struct {
	mu       sync.Mutex
	chain    []models.EncoderKind
	failures map[models.EncoderKind]int
	avoided  map[models.Vendor]bool
	caps     models.HardwareCapabilities
	log      *logrus.Entry
}

func New(caps models.HardwareCapabilities, logger *logrus.Logger) *Policy {
	return &Policy{
		chain:    BuildChain(caps.AvailableEncoders),
		failures: make(map[models.EncoderKind]int),
		avoided:  make(map[models.Vendor]bool),
		caps:     caps,
		log:      logging.Component(logger, "fallback"),
	}
}

// Chain returns a copy of the fallback chain.
func (p *Policy) Chain() []models.EncoderKind {
	return append([]models.EncoderKind(nil), p.chain...)
}

func (p *Policy) IsUsable(kind models.EncoderKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usable(kind)
}

func (p *Policy) usable(kind models.EncoderKind) bool {
	return p.failures[kind] < MaxFailures
}

// GetNextEncoder returns preferred while it is usable, otherwise the first
// usable encoder in the chain, otherwise Software.
func (p *Policy) GetNextEncoder(preferred models.EncoderKind) models.EncoderKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next(preferred)
}

func (p *Policy) next(preferred models.EncoderKind) models.EncoderKind {
	if p.usable(preferred) {
		return preferred
	}
	return p.walk()
}

// walk returns the first usable chain entry, passing over avoided vendors
// unless nothing else is left.
func (p *Policy) walk() models.EncoderKind {
	for _, skipAvoided := range []bool{true, false} {
		for _, k := range p.chain {
			if skipAvoided && p.avoided[k.Vendor()] {
				continue
			}
			if p.usable(k) {
				p.log.WithField("encoder", k.String()).Info("Falling back to encoder")
				return k
			}
		}
	}
	p.log.Warn("All hardware encoders failed, falling back to software")
	return models.Software
}

// RecordFailure increments the failure count for kind and returns it.
func (p *Policy) RecordFailure(kind models.EncoderKind, cause error) int {
	strategy := TryAlternative
	if cause != nil {
		strategy = ClassifyFor(kind, cause.Error(), p.caps)
	}

	p.mu.Lock()
	p.failures[kind]++
	count := p.failures[kind]
	if avoid, ok := vendorAvoidance(kind.Vendor()); ok && avoid == strategy {
		p.avoided[kind.Vendor()] = true
	}
	p.mu.Unlock()

	metrics.EncoderFailuresTotal.WithLabelValues(kind.String()).Inc()
	entry := p.log.WithFields(logrus.Fields{"encoder": kind.String(), "failures": count})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn("Encoder failed")
	if count >= MaxFailures {
		entry.Error("Encoder reached failure limit, no longer usable")
	}
	return count
}

// RecordSuccess resets the failure count for kind.
func (p *Policy) RecordSuccess(kind models.EncoderKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.failures[kind]; ok {
		p.log.WithField("encoder", kind.String()).Debug("Encoder succeeded, resetting failure count")
		p.failures[kind] = 0
	}
	delete(p.avoided, kind.Vendor())
}

// Avoided reports whether the chain walk currently passes over vendor.
func (p *Policy) Avoided(vendor models.Vendor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avoided[vendor]
}

// ErrorSpecificFallback proposes an encoder based on the error text, or
// reports false when the text matches no known category.
func (p *Policy) ErrorSpecificFallback(kind models.EncoderKind, errText string) (models.EncoderKind, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorSpecific(kind, errText)
}

func (p *Policy) errorSpecific(kind models.EncoderKind, errText string) (models.EncoderKind, bool) {
	text := strings.ToLower(errText)
	if keywords, ok := vendorKeywords[kind.Vendor()]; ok && containsAny(text, keywords...) {
		return p.alternativeVendor(kind)
	}
	if strings.Contains(text, "memory") {
		return models.Software, true
	}
	if containsAny(text, "device", "unavailable") {
		return p.alternativeVendor(kind)
	}
	return models.Software, false
}

func (p *Policy) alternativeVendor(failed models.EncoderKind) (models.EncoderKind, bool) {
	if !failed.IsHardware() {
		return models.Software, false
	}
	for _, alt := range codecAlternatives[failed.Codec()] {
		if alt == failed || !p.usable(alt) || !p.inChain(alt) {
			continue
		}
		p.log.WithField("encoder", alt.String()).Debug("Found alternative encoder")
		return alt, true
	}
	return models.Software, false
}

func (p *Policy) inChain(kind models.EncoderKind) bool {
	for _, k := range p.chain {
		if k == kind {
			return true
		}
	}
	return false
}

// Recommend picks the encoder for the attempt after current failed with
// errText. Call it after RecordFailure. Order of preference: an error-specific
// alternative, the chain walk when current is unusable or its vendor is
// avoided, a same-vendor downgrade or software for codec and driver errors,
// and finally current itself.
func (p *Policy) Recommend(current models.EncoderKind, errText string) (models.EncoderKind, RecoveryStrategy) {
	strategy := ClassifyFor(current, errText, p.caps)
	metrics.RecoveryStrategiesTotal.WithLabelValues(strategy.String()).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	if alt, ok := p.errorSpecific(current, errText); ok && alt != current && p.usable(alt) {
		return alt, strategy
	}
	if !p.usable(current) || p.avoided[current.Vendor()] {
		return p.walk(), strategy
	}
	switch strategy {
	case ChangeEncoder, FallbackToSoftware:
		if alt, err := Apply(strategy, current, p.caps); err == nil && alt != current && p.usable(alt) && p.caps.Has(alt) {
			return alt, strategy
		}
	}
	return current, strategy
}

// FailureStats returns a snapshot of the failure counts.
func (p *Policy) FailureStats() map[models.EncoderKind]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[models.EncoderKind]int, len(p.failures))
	for k, v := range p.failures {
		out[k] = v
	}
	return out
}

func (p *Policy) Reset() {
	p.mu.Lock()
	p.failures = make(map[models.EncoderKind]int)
	p.avoided = make(map[models.Vendor]bool)
	p.mu.Unlock()
	p.log.Info("Encoder failure counts reset")
}

// HasUsableHardware reports whether any accelerated encoder in the chain is
// still usable.
func (p *Policy) HasUsableHardware() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.chain {
		if k.IsHardware() && p.usable(k) {
			return true
		}
	}
	return false
}
