// Package badges derives a BadgeProfile from a message author's badge labels
package badges

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
)

// rule inspects one label and updates the profile. A returned error means
// only the rule's numeric value was left unset.
type rule struct {
	name  string
	match func(label string) bool
	apply func(label string, p *models.BadgeProfile) error
}

func contains(sub string) func(string) bool {
	return func(label string) bool { return strings.Contains(label, sub) }
}

var (
	leadingNumber = regexp.MustCompile(`^\s*(\d+)`)
	yearsPrefix   = regexp.MustCompile(`^\s*(\d+)-Year`)
)

var rules = []rule{
	{
		name:  "vip",
		match: contains("VIP"),
		apply: func(_ string, p *models.BadgeProfile) error {
			p.IsVIP = true
			return nil
		},
	},
	{
		name: "premium",
		match: func(label string) bool {
			return strings.Contains(label, "Prime Gaming") || strings.Contains(label, "Turbo")
		},
		apply: func(label string, p *models.BadgeProfile) error {
			p.PremiumKind = label
			return nil
		},
	},
	{
		name:  "subscriber",
		match: contains("Subscriber"),
		apply: func(label string, p *models.BadgeProfile) error {
			p.HasSubscriptionBadge = true
			month, err := subscriptionMonth(label)
			if err != nil {
				return err
			}
			p.SubscriptionMonth = month
			return nil
		},
	},
	{
		name:  "gifter_leader",
		match: contains("Gifter Leader"),
		apply: func(label string, p *models.BadgeProfile) error {
			n, err := lastToken(label)
			if err != nil {
				return err
			}
			p.GiftLeaderRank = n
			return nil
		},
	},
	{
		name:  "gift_subs",
		match: contains("Gift Subs"),
		apply: func(label string, p *models.BadgeProfile) error {
			p.HasGifterBadge = true
			n, err := firstToken(label)
			if err != nil {
				return err
			}
			p.GifterVersion = n
			return nil
		},
	},
	{
		name:  "cheer",
		match: contains("cheer"),
		apply: func(label string, p *models.BadgeProfile) error {
			p.HasBitsBadge = true
			n, err := lastToken(label)
			if err != nil {
				return err
			}
			p.BitsBadgeCheer = n
			return nil
		},
	},
	{
		name:  "bits_leader",
		match: contains("Bits Leader"),
		apply: func(label string, p *models.BadgeProfile) error {
			n, err := lastToken(label)
			if err != nil {
				return err
			}
			p.BitsLeaderRank = n
			return nil
		},
	},
}

// subscriptionMonth reads "3-Month Subscriber" as 3 and "2-Year Subscriber"
// as 24. A label with no number is a first-month badge.
func subscriptionMonth(label string) (int, error) {
	if m := yearsPrefix.FindStringSubmatch(label); m != nil {
		years, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		return 12 * years, nil
	}
	if m := leadingNumber.FindStringSubmatch(label); m != nil {
		return strconv.Atoi(m[1])
	}
	return 1, nil
}

func firstToken(label string) (int, error) {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty label")
	}
	return strconv.Atoi(fields[0])
}

func lastToken(label string) (int, error) {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty label")
	}
	return strconv.Atoi(fields[len(fields)-1])
}

// Annotator applies the badge rules
type Annotator struct {
	logger logger.Logger
}

// New creates an annotator
func New(log logger.Logger) *Annotator {
	return &Annotator{logger: log}
}

// Annotate evaluates every rule against every label, labels in order and
// rules in order within a label
func (a *Annotator) Annotate(labels []string) models.BadgeProfile {
	var p models.BadgeProfile
	for _, label := range labels {
		for _, r := range rules {
			if !r.match(label) {
				continue
			}
			if err := r.apply(label, &p); err != nil {
				logger.Or(a.logger).WithError(err).WithFields(map[string]interface{}{
					"rule":  r.name,
					"label": label,
				}).Debug("malformed badge value")
			}
		}
	}
	return p
}

// Merge combines two profiles: flags are OR'ed and q's values replace p's
// wherever q has one. Annotate(append(a, b...)) == Merge(Annotate(a), Annotate(b)).
func Merge(p, q models.BadgeProfile) models.BadgeProfile {
	out := p
	out.IsVIP = p.IsVIP || q.IsVIP
	out.HasSubscriptionBadge = p.HasSubscriptionBadge || q.HasSubscriptionBadge
	out.HasGifterBadge = p.HasGifterBadge || q.HasGifterBadge
	out.HasBitsBadge = p.HasBitsBadge || q.HasBitsBadge

	if q.PremiumKind != "" {
		out.PremiumKind = q.PremiumKind
	}
	if q.SubscriptionMonth != 0 {
		out.SubscriptionMonth = q.SubscriptionMonth
	}
	if q.GifterVersion != 0 {
		out.GifterVersion = q.GifterVersion
	}
	if q.GiftLeaderRank != 0 {
		out.GiftLeaderRank = q.GiftLeaderRank
	}
	if q.BitsBadgeCheer != 0 {
		out.BitsBadgeCheer = q.BitsBadgeCheer
	}
	if q.BitsLeaderRank != 0 {
		out.BitsLeaderRank = q.BitsLeaderRank
	}
	return out
}
