package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Category is one member of the fixed catalog of required report kinds.
// FilenamePattern must capture the covered date range: one capture group for
// single-day exports, two (start, end) for multi-day exports. DateLayout is
// the Go time layout of those captures.
type Category struct {
	Key             string  `yaml:"key"`
	Name            string  `yaml:"name"`
	Kind            RowKind `yaml:"kind"`
	FilenamePattern string  `yaml:"filename_pattern"`
	DateLayout      string  `yaml:"date_layout"`

	pattern *regexp.Regexp
}

// Match reports whether filename belongs to this category.
func (c *Category) Match(filename string) bool {
	return c.pattern.MatchString(filename)
}

// DateRange extracts the covered (start, end) range from filename. A single
// captured date yields start == end.
func (c *Category) DateRange(filename string) (time.Time, time.Time, error) {
	groups := c.pattern.FindStringSubmatch(filename)
	if len(groups) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("no date captures in %q for category %s", filename, c.Key)
	}

	start, err := time.Parse(c.DateLayout, groups[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range start %q: %w", groups[1], err)
	}
	end := start
	if len(groups) > 2 && groups[2] != "" {
		end, err = time.Parse(c.DateLayout, groups[2])
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse range end %q: %w", groups[2], err)
		}
	}
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s before start %s", FormatDay(end), FormatDay(start))
	}
	return start, end, nil
}

// Catalog is the ordered set of required categories for a complete day.
// It is static configuration; cardinality is never hardcoded by callers.
type Catalog struct {
	categories []Category
	byKey      map[string]*Category
}

func NewCatalog(categories []Category) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one category")
	}

	c := &Catalog{
		categories: make([]Category, len(categories)),
		byKey:      make(map[string]*Category, len(categories)),
	}
	copy(c.categories, categories)

	for i := range c.categories {
		cat := &c.categories[i]
		if strings.TrimSpace(cat.Key) == "" {
			return nil, fmt.Errorf("category %d: key is required", i)
		}
		if _, dup := c.byKey[cat.Key]; dup {
			return nil, fmt.Errorf("duplicate category key %q", cat.Key)
		}
		switch cat.Kind {
		case KindAgent, KindSkill, KindCall, KindCampaign:
		default:
			return nil, fmt.Errorf("category %s: unknown row kind %q", cat.Key, cat.Kind)
		}
		if cat.DateLayout == "" {
			cat.DateLayout = DayLayout
		}
		pattern, err := regexp.Compile(cat.FilenamePattern)
		if err != nil {
			return nil, fmt.Errorf("category %s: compile filename pattern: %w", cat.Key, err)
		}
		cat.pattern = pattern
		c.byKey[cat.Key] = cat
	}
	return c, nil
}

// MustCatalog panics on an invalid catalog definition. Used for the built-in
// default, which is validated by tests.
func MustCatalog(categories []Category) *Catalog {
	c, err := NewCatalog(categories)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Len() int {
	return len(c.categories)
}

func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.categories))
	for i := range c.categories {
		keys[i] = c.categories[i].Key
	}
	return keys
}

func (c *Catalog) Get(key string) (*Category, bool) {
	cat, ok := c.byKey[key]
	return cat, ok
}

// MatchFilename resolves the category a filename belongs to.
func (c *Catalog) MatchFilename(filename string) (*Category, bool) {
	for i := range c.categories {
		if c.categories[i].Match(filename) {
			return &c.categories[i], true
		}
	}
	return nil, false
}

const defaultDatePattern = `(\d{4}-\d{2}-\d{2})(?:[_ -](\d{4}-\d{2}-\d{2}))?`

func defaultEntry(key, name string, kind RowKind, stem string) Category {
	return Category{
		Key:             key,
		Name:            name,
		Kind:            kind,
		FilenamePattern: `(?i)^` + stem + `[_ -]` + defaultDatePattern + `\.(?:xlsx|xls)$`,
		DateLayout:      DayLayout,
	}
}

// DefaultCatalog mirrors the dialer's standard nightly export set.
func DefaultCatalog() *Catalog {
	return MustCatalog([]Category{
		defaultEntry("agent_summary", "Agent Summary", KindAgent, `agent[_ -]?summary`),
		defaultEntry("agent_production", "Agent Production", KindAgent, `agent[_ -]?production`),
		defaultEntry("agent_login", "Agent Login Report", KindAgent, `agent[_ -]?login`),
		defaultEntry("shift_report", "Shift Report", KindAgent, `shift[_ -]?report`),
		defaultEntry("skill_production", "Skill Production", KindSkill, `skill[_ -]?production`),
		defaultEntry("skill_interval", "Skill Interval", KindSkill, `skill[_ -]?interval`),
		defaultEntry("inbound_summary", "Inbound Summary", KindSkill, `inbound[_ -]?summary`),
		defaultEntry("call_log", "Call Log", KindCall, `call[_ -]?log`),
		defaultEntry("transfer_log", "Transfer Log", KindCall, `transfer[_ -]?log`),
		defaultEntry("dialer_disposition", "Dialer Disposition", KindCall, `dialer[_ -]?disposition`),
		defaultEntry("campaign_summary", "Campaign Summary", KindCampaign, `campaign[_ -]?summary`),
		defaultEntry("campaign_system", "Campaign System Report", KindCampaign, `campaign[_ -]?system`),
	})
}
