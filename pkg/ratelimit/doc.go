// Package ratelimit paces interactions with the portal.
//
// The portal is an interactive application with no published limits, so the
// scraper behaves like a patient user: every navigation and every shipment
// cycle is followed by a randomized pause. Jitter draws that pause uniformly
// from [min, max] and can additionally hold a sustained ceiling of
// navigations per minute through golang.org/x/time/rate.
//
// Usage:
//
//	pacer := ratelimit.NewJitter(2*time.Second, 5*time.Second, 30)
//	if err := pacer.Pause(ctx); err != nil {
//	    return err // ctx cancelled
//	}
//
// Tests use NoPause.
package ratelimit
