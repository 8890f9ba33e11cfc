package fib

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrInvalidPrefix   = errors.New("invalid prefix")
	ErrInvalidNextHop  = errors.New("invalid next hop")
	ErrNotFound        = errors.New("route not found")
	ErrUnreachable     = errors.New("next hop unreachable")
	ErrResolutionCycle = errors.New("resolution cycle")
)

// UnreachableError reports a gateway that could not be resolved through any
// narrower-scope route.
type UnreachableError struct {
	Gateway netip.Addr
	Scope   Scope // scope the gateway had to be narrower than
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("no route to gateway %s narrower than scope %s", e.Gateway, e.Scope)
}

func (e *UnreachableError) Unwrap() error {
	return ErrUnreachable
}

// CycleError reports a table whose next hops reference each other without
// narrowing scope. It indicates corrupted configuration, not a missing route.
type CycleError struct {
	Dest    netip.Addr
	Gateway netip.Addr
	Chain   []Step
}

func (e *CycleError) Error() string {
	hops := make([]string, 0, len(e.Chain))
	for _, s := range e.Chain {
		hops = append(hops, s.Prefix.String())
	}
	return fmt.Sprintf("resolution cycle resolving %s via gateway %s: %s",
		e.Dest, e.Gateway, strings.Join(hops, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrResolutionCycle
}
