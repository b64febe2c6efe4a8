// Package remote runs the browser on another machine over SSH: it starts or
// reuses a Chrome instance there, keeps its debug port stable per profile,
// and forwards that port to localhost so the local driver can attach with
// ConnectOverCDP.
package remote

// PortFor derives a stable debugging port for a profile. The byte sum keeps
// two workers on different profiles from fighting over one Chrome instance
// while staying reproducible across restarts.
func PortFor(base, span int, profile string) int {
	if span < 1 {
		span = 1
	}
	sum := 0
	for _, b := range []byte(profile) {
		sum += int(b)
	}
	return base + sum%span
}
