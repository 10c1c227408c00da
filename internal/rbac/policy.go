package rbac

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Requirement binds the permission code it enforces at construction time.
type Requirement struct {
	code string
}

// Code returns the permission code the requirement checks.
func (r Requirement) Code() string {
	return r.code
}

// SatisfiedBy reports whether the permission set holds the bound code.
func (r Requirement) SatisfiedBy(granted shared.PermissionSet) bool {
	return granted.Has(r.code)
}

// Policy is the cached authorization policy for one permission code.
type Policy struct {
	Name        string
	Requirement Requirement
}

// PolicyResolver lazily materialises one Policy per permission code. Entries
// live for the process lifetime.
type PolicyResolver struct {
	policies sync.Map // code -> *Policy
	group    singleflight.Group
	size     atomic.Int64
	onCreate func(*Policy)
}

// NewPolicyResolver constructs an empty resolver.
func NewPolicyResolver() *PolicyResolver {
	return &PolicyResolver{}
}

// OnCreate registers a hook invoked once per newly published policy.
func (r *PolicyResolver) OnCreate(fn func(*Policy)) {
	r.onCreate = fn
}

// GetOrCreatePolicy returns the shared policy for code, creating it on first use.
// Concurrent first-time callers all observe the same instance.
func (r *PolicyResolver) GetOrCreatePolicy(code string) (*Policy, error) {
	if p, ok := r.policies.Load(code); ok {
		return p.(*Policy), nil
	}
	if !ValidCode(code) {
		return nil, fmt.Errorf("%w: malformed permission code %q", shared.ErrConfiguration, code)
	}
	v, err, _ := r.group.Do(code, func() (any, error) {
		candidate := &Policy{Name: code, Requirement: Requirement{code: code}}
		actual, loaded := r.policies.LoadOrStore(code, candidate)
		if !loaded {
			r.size.Add(1)
			if r.onCreate != nil {
				r.onCreate(candidate)
			}
		}
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Policy), nil
}

// Len reports how many policies have been materialised.
func (r *PolicyResolver) Len() int {
	return int(r.size.Load())
}
