// Package validation decides whether a proposed connection between two
// handles may become an arrow. Checks run in a fixed order and produce a
// structured rejection reason; a rejected connection is discarded, never an
// error condition.
package validation

import (
	"fmt"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/metric"
	"github.com/sorryhyun/DiPeO-sub002/registry"
)

// Reason identifies why a proposed connection was rejected.
type Reason string

const (
	ReasonMissingEndpoint    Reason = "missing_endpoint"
	ReasonSelfConnection     Reason = "self_connection"
	ReasonUnresolvableHandle Reason = "unresolvable_handle"
	ReasonTypeMismatch       Reason = "type_mismatch"
	ReasonDuplicate          Reason = "duplicate"
)

// Result is the outcome of validating a proposed connection.
type Result struct {
	OK     bool
	Reason Reason
	Detail string

	// Branch is set on acceptance when the source is a conditional output.
	// The caller must attach it to the new arrow's data so the execution
	// layer can select the taken path; ArrowData does this.
	Branch string
}

// ArrowData returns the data map the accepted arrow must carry, or nil when
// no discriminant applies.
func (r Result) ArrowData() map[string]any {
	if !r.OK || r.Branch == "" {
		return nil
	}
	return map[string]any{diagram.BranchKey: r.Branch}
}

func reject(reason Reason, format string, args ...any) Result {
	return Result{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// GraphView is the read surface the validator needs from the graph store.
type GraphView interface {
	Node(id diagram.NodeID) (diagram.Node, bool)
	Handle(id diagram.HandleID) (diagram.Handle, bool)
	HasArrow(source, target diagram.HandleID) bool
}

// CompatibilityPolicy decides whether data may flow from a source handle's
// type into a target handle's type.
type CompatibilityPolicy interface {
	Compatible(source, target diagram.DataType) bool
}

// DefaultPolicy is the shipped compatibility rule: exact type match, with
// "any" wildcard-compatible in both directions.
type DefaultPolicy struct{}

// Compatible implements CompatibilityPolicy.
func (DefaultPolicy) Compatible(source, target diagram.DataType) bool {
	if source == diagram.DataAny || target == diagram.DataAny {
		return true
	}
	return source == target
}

// Validator checks proposed connections against a graph view.
type Validator struct {
	policy  CompatibilityPolicy
	metrics *metric.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithPolicy replaces the default data-type compatibility policy.
func WithPolicy(policy CompatibilityPolicy) Option {
	return func(v *Validator) {
		if policy != nil {
			v.policy = policy
		}
	}
}

// WithMetrics counts rejections by reason.
func WithMetrics(m *metric.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator creates a validator with the default policy.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{policy: DefaultPolicy{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decides whether an arrow from source to target may be added.
// Checks run in order: missing endpoint, self-connection, unresolvable
// handle, data-type incompatibility, duplicate pair.
func (v *Validator) Validate(source, target diagram.HandleID, view GraphView) Result {
	res := v.validate(source, target, view)
	if !res.OK && v.metrics != nil {
		v.metrics.ConnectionRejects.WithLabelValues(string(res.Reason)).Inc()
	}
	return res
}

func (v *Validator) validate(source, target diagram.HandleID, view GraphView) Result {
	if source == "" || target == "" {
		return reject(ReasonMissingEndpoint, "source=%q target=%q", source, target)
	}

	srcParsed, srcOK := diagram.DecodeHandleID(source)
	tgtParsed, tgtOK := diagram.DecodeHandleID(target)
	if srcOK && tgtOK && srcParsed.NodeID == tgtParsed.NodeID {
		return reject(ReasonSelfConnection, "both endpoints on node %s", srcParsed.NodeID)
	}

	srcHandle, ok := view.Handle(source)
	if !srcOK || !ok {
		return reject(ReasonUnresolvableHandle, "source %s", source)
	}
	tgtHandle, ok := view.Handle(target)
	if !tgtOK || !ok {
		return reject(ReasonUnresolvableHandle, "target %s", target)
	}
	if _, ok := view.Node(srcHandle.NodeID); !ok {
		return reject(ReasonUnresolvableHandle, "source owner %s", srcHandle.NodeID)
	}
	if _, ok := view.Node(tgtHandle.NodeID); !ok {
		return reject(ReasonUnresolvableHandle, "target owner %s", tgtHandle.NodeID)
	}

	if !v.policy.Compatible(srcHandle.DataType, tgtHandle.DataType) {
		return reject(ReasonTypeMismatch, "%s -> %s", srcHandle.DataType, tgtHandle.DataType)
	}

	if view.HasArrow(source, target) {
		return reject(ReasonDuplicate, "%s -> %s", source, target)
	}

	res := Result{OK: true}
	if node, ok := view.Node(srcHandle.NodeID); ok &&
		node.Type == diagram.NodeCondition && registry.IsBranchLabel(srcHandle.Label) {
		res.Branch = srcHandle.Label
	}
	return res
}
