// Package classify assigns each chat message exactly one category from an
// ordered list of templates. The first template that matches wins; a
// message no template matches, or whose matched values cannot be extracted,
// is Plain.
package classify

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"clipharvest/pkg/config"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
)

// Extractor turns a template's submatches into a classification
type Extractor func(groups []string) (models.Classification, error)

// Rule pairs a template with its extractor
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract Extractor
}

// Apply tests one rule. ok is false when the template does not match;
// err is set when it matched but extraction failed.
func (r Rule) Apply(text string) (c models.Classification, ok bool, err error) {
	groups := r.Pattern.FindStringSubmatch(text)
	if groups == nil {
		return models.Classification{}, false, nil
	}
	c, err = r.Extract(groups)
	return c, true, err
}

// Classifier evaluates its rules in order
type Classifier struct {
	rules     []Rule
	normalize bool
	logger    logger.Logger
}

// New compiles the configured templates into the standard rule order:
// cheer, self subscription, gift subscription
func New(cfg config.ClassifyConfig, log logger.Logger) (*Classifier, error) {
	cheer, err := regexp.Compile(cfg.CheerPattern)
	if err != nil {
		return nil, fmt.Errorf("cheer pattern: %w", err)
	}
	subscribed, err := regexp.Compile(cfg.SubscribedPattern)
	if err != nil {
		return nil, fmt.Errorf("subscribed pattern: %w", err)
	}
	gifting, err := regexp.Compile(cfg.GiftingPattern)
	if err != nil {
		return nil, fmt.Errorf("gifting pattern: %w", err)
	}

	rules := []Rule{
		{Name: "cheer", Pattern: cheer, Extract: extractCheer},
		{Name: "self_subscribe", Pattern: subscribed, Extract: extractSubscribed},
		{Name: "gift_subscribe", Pattern: gifting, Extract: extractGifting},
	}
	return NewWithRules(rules, cfg.NormalizeUnicode, log), nil
}

// NewWithRules builds a classifier over an explicit rule list
func NewWithRules(rules []Rule, normalize bool, log logger.Logger) *Classifier {
	return &Classifier{rules: rules, normalize: normalize, logger: log}
}

// Rules returns the rule list in evaluation order
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the category of text and the values extracted for it
func (c *Classifier) Classify(text string) models.Classification {
	if c.normalize {
		text = norm.NFKC.String(text)
	}

	for _, r := range c.rules {
		cl, ok, err := r.Apply(text)
		if !ok {
			continue
		}
		if err != nil {
			logger.Or(c.logger).WithError(err).WithFields(map[string]interface{}{
				"rule": r.Name,
				"text": text,
			}).Warn("template matched but extraction failed, treating as plain")
			return models.Classification{Category: models.CategoryPlain}
		}
		return cl
	}

	return models.Classification{Category: models.CategoryPlain}
}

func group(groups []string, i int, name string) (string, error) {
	if i >= len(groups) || groups[i] == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return groups[i], nil
}

func intGroup(groups []string, i int, name string) (int, error) {
	s, err := group(groups, i, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", name, s)
	}
	return n, nil
}

func extractCheer(groups []string) (models.Classification, error) {
	amount, err := intGroup(groups, 1, "cheer amount")
	if err != nil {
		return models.Classification{}, err
	}
	return models.Classification{Category: models.CategoryCheer, CheerAmount: amount}, nil
}

func extractSubscribed(groups []string) (models.Classification, error) {
	tier, err := intGroup(groups, 1, "tier")
	if err != nil {
		return models.Classification{}, err
	}
	month, err := intGroup(groups, 2, "subscribed month")
	if err != nil {
		return models.Classification{}, err
	}
	return models.Classification{
		Category:        models.CategorySelfSubscribe,
		TierLevel:       tier,
		SubscribedMonth: month,
	}, nil
}

func extractGifting(groups []string) (models.Classification, error) {
	count, err := intGroup(groups, 1, "gift count")
	if err != nil {
		return models.Classification{}, err
	}
	tier, err := intGroup(groups, 2, "tier")
	if err != nil {
		return models.Classification{}, err
	}
	// channel is informational; templates without the group still classify
	channel := ""
	if len(groups) > 3 {
		channel = groups[3]
	}
	return models.Classification{
		Category:    models.CategoryGiftSubscribe,
		TierLevel:   tier,
		GiftCount:   count,
		GiftChannel: channel,
	}, nil
}
