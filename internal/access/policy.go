// Package access evaluates the upload, download and remove policies of a files collection.
package access

import "net/http"

// Verdict is the outcome of a policy evaluation.
// A denied verdict may carry an HTTP status and a reason for the client.
type Verdict struct {
	Allow  bool
	Status int
	Reason string
}

func Allow() Verdict { return Verdict{Allow: true} }

func Deny() Verdict { return Verdict{} }

// DenyStatus denies with a specific response code.
func DenyStatus(code int) Verdict { return Verdict{Status: code} }

// DenyReason denies with a message surfaced to the client.
func DenyReason(reason string) Verdict { return Verdict{Reason: reason} }

// StatusOr returns the verdict status or def when none was set.
func (v Verdict) StatusOr(def int) int {
	if v.Status >= http.StatusBadRequest && v.Status <= 599 {
		return v.Status
	}
	return def
}

// PolicyKind enumerates the closed set of policy variants.
type PolicyKind int

const (
	KindDisabled PolicyKind = iota
	KindFixed
	KindCustom
)

func (k PolicyKind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindCustom:
		return "custom"
	default:
		return "disabled"
	}
}

// Policy is a decision point configured as disabled, a fixed boolean or a custom predicate.
// The zero value is a disabled policy.
type Policy[C any] struct {
	kind  PolicyKind
	fixed bool
	fn    func(C) Verdict
}

// Fixed returns a policy that always yields b.
func Fixed[C any](b bool) Policy[C] {
	return Policy[C]{kind: KindFixed, fixed: b}
}

// Custom returns a policy backed by a predicate. A nil predicate yields a disabled policy.
func Custom[C any](fn func(C) Verdict) Policy[C] {
	if fn == nil {
		return Policy[C]{}
	}
	return Policy[C]{kind: KindCustom, fn: fn}
}

// CustomBool adapts a plain boolean predicate.
func CustomBool[C any](fn func(C) bool) Policy[C] {
	if fn == nil {
		return Policy[C]{}
	}
	return Custom(func(c C) Verdict {
		if fn(c) {
			return Allow()
		}
		return Deny()
	})
}

func (p Policy[C]) Kind() PolicyKind { return p.kind }

// Value is the configured boolean of a fixed policy.
func (p Policy[C]) Value() bool { return p.fixed }

// Enabled reports whether the policy takes part in decisions at all.
func (p Policy[C]) Enabled() bool { return p.kind != KindDisabled }

// Evaluate runs the policy. Disabled policies return whenDisabled.
func (p Policy[C]) Evaluate(c C, whenDisabled Verdict) Verdict {
	switch p.kind {
	case KindFixed:
		if p.fixed {
			return Allow()
		}
		return Deny()
	case KindCustom:
		return p.fn(c)
	default:
		return whenDisabled
	}
}
