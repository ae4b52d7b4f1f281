package services

import (
	"fmt"
	"net/netip"

	"storefront_payments/internal/config"
)

// IPAllowlist is a coarse, advisory filter against known gateway ranges.
// Ranges rotate, so it never stands in for signature verification.
type IPAllowlist struct {
	sandbox    []netip.Prefix
	production []netip.Prefix
}

func NewIPAllowlist(sandbox, production []string) (*IPAllowlist, error) {
	sb, err := parsePrefixes(sandbox)
	if err != nil {
		return nil, fmt.Errorf("sandbox ranges: %w", err)
	}
	prod, err := parsePrefixes(production)
	if err != nil {
		return nil, fmt.Errorf("production ranges: %w", err)
	}
	return &IPAllowlist{sandbox: sb, production: prod}, nil
}

// IsAllowed reports whether ip falls in one of the ranges for mode.
func (a *IPAllowlist) IsAllowed(ip string, mode config.Mode) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	ranges := a.sandbox
	if mode == config.ModeProduction {
		ranges = a.production
	}
	for _, p := range ranges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
