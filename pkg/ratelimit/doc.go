// Package ratelimit paces Helix requests on top of golang.org/x/time/rate.
//
// Interval enforces the minimum inter-request delay shared by every
// pagination walk. TokenBucket models the Helix points budget. Chain combines
// both so a single Wait respects each.
package ratelimit
