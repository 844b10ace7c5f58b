// Package response scans completion text flowing back to clients.
//
// Outbound injection findings are always advisory: a model quoting an
// attack pattern back is not itself an attack, so injection hits are
// logged but never block. PII blocks only when the response action is
// block; there is no outbound redaction because mutating a completion
// after billing tokens would corrupt the contract with the client.
package response

import (
	"github.com/bastionlabs/bastion/internal/security/injection"
	"github.com/bastionlabs/bastion/internal/security/pii"
)

// Result summarizes both outbound scans for one completion.
type Result struct {
	Allowed bool

	InjectionScore      float64
	InjectionCategories []string
	PIIDetections       []pii.Detection
}

// Scanner applies outbound policy to completion text.
type Scanner struct {
	injectionThreshold float64
	piiAction          string
}

// New creates a Scanner. piiAction is one of the pii action constants;
// anything other than block is treated as log-only.
func New(injectionThreshold float64, piiAction string) *Scanner {
	return &Scanner{injectionThreshold: injectionThreshold, piiAction: piiAction}
}

// Scan inspects completion text. Empty text passes untouched.
func (s *Scanner) Scan(text string) Result {
	if text == "" {
		return Result{Allowed: true}
	}

	inj := injection.Scan(text, s.injectionThreshold)
	p := pii.Scan(text, pii.ActionLogOnly)

	res := Result{
		Allowed:             true,
		InjectionScore:      inj.RiskScore,
		InjectionCategories: inj.Categories,
		PIIDetections:       p.Detections,
	}
	if s.piiAction == pii.ActionBlock && len(p.Detections) > 0 {
		res.Allowed = false
	}
	return res
}
