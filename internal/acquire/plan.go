package acquire

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/pkg/places"
)

// Plan is an ordered list of strategies to run.
type Plan struct {
	Strategies []Spec `yaml:"strategies" mapstructure:"strategies"`
}

// Spec configures one strategy. Fields that do not apply to a kind are
// ignored.
type Spec struct {
	Name      string      `yaml:"name" mapstructure:"name"`
	Label     string      `yaml:"label" mapstructure:"label"`
	Keywords  []string    `yaml:"keywords" mapstructure:"keywords"`
	Districts []string    `yaml:"districts" mapstructure:"districts"`
	RadiusM   int         `yaml:"radius_m" mapstructure:"radius_m"`
	Center    *geo.LatLng `yaml:"center" mapstructure:"center"`
	PerSecond float64     `yaml:"per_second" mapstructure:"per_second"`
	MaxPages  int         `yaml:"max_pages" mapstructure:"max_pages"`
	Snapshots []string    `yaml:"snapshots" mapstructure:"snapshots"`
}

// Live reports whether the spec calls the provider.
func (s Spec) Live() bool {
	return s.Name != KindSnapshot
}

// LoadPlan reads a YAML acquisition plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, eris.Wrapf(err, "acquire: read plan %s", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "acquire: parse plan %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every strategy name is known.
func (p *Plan) Validate() error {
	if len(p.Strategies) == 0 {
		return eris.New("acquire: plan has no strategies")
	}
	for i, s := range p.Strategies {
		switch s.Name {
		case KindDistrictKeyword, KindProximity, KindBulkText:
		case KindSnapshot:
			if len(s.Snapshots) == 0 {
				return eris.Errorf("acquire: strategy %d (snapshot) has no snapshot paths", i)
			}
		default:
			return eris.Errorf("acquire: strategy %d has unknown name %q", i, s.Name)
		}
	}
	return nil
}

// HasLive reports whether any strategy calls the provider.
func (p *Plan) HasLive() bool {
	for _, s := range p.Strategies {
		if s.Live() {
			return true
		}
	}
	return false
}

// Filter keeps strategies whose name or label is in names. An empty names
// list returns the plan unchanged.
func (p *Plan) Filter(names []string) *Plan {
	if len(names) == 0 {
		return p
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := &Plan{}
	for _, s := range p.Strategies {
		if want[s.Name] || (s.Label != "" && want[s.Label]) {
			out.Strategies = append(out.Strategies, s)
		}
	}
	return out
}

// Registry builds strategies from specs.
type Registry struct {
	client    places.Client
	perSecond float64
	pageDelay time.Duration
	maxPages  int
}

// NewRegistry creates a registry. perSecond, pageDelay and maxPages are the
// defaults for specs that leave them unset.
func NewRegistry(client places.Client, perSecond float64, pageDelay time.Duration, maxPages int) *Registry {
	return &Registry{client: client, perSecond: perSecond, pageDelay: pageDelay, maxPages: maxPages}
}

// Build creates the strategies of plan in order. Every live strategy gets its
// own throttle.
func (r *Registry) Build(plan *Plan) ([]Strategy, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := make([]Strategy, 0, len(plan.Strategies))
	for _, spec := range plan.Strategies {
		s, err := r.build(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Registry) build(spec Spec) (Strategy, error) {
	if spec.Live() && r.client == nil {
		return nil, eris.Errorf("acquire: strategy %s requires a places client", spec.Name)
	}

	perSecond := spec.PerSecond
	if perSecond <= 0 {
		perSecond = r.perSecond
	}
	maxPages := spec.MaxPages
	if maxPages <= 0 {
		maxPages = r.maxPages
	}
	th := NewThrottle(perSecond, r.pageDelay)

	switch spec.Name {
	case KindDistrictKeyword:
		s := NewDistrictKeywordStrategy(r.client, th, spec.Districts, spec.Keywords, maxPages)
		if spec.Label != "" {
			s.name = spec.Label
		}
		return s, nil
	case KindProximity:
		keyword := ""
		if len(spec.Keywords) > 0 {
			keyword = spec.Keywords[0]
		}
		s := NewProximityStrategy(r.client, th, spec.Center, spec.RadiusM, keyword, maxPages)
		if spec.Label != "" {
			s.name = spec.Label
		}
		return s, nil
	case KindBulkText:
		s := NewBulkTextStrategy(r.client, th, spec.Keywords, maxPages)
		if spec.Label != "" {
			s.name = spec.Label
		}
		return s, nil
	case KindSnapshot:
		s := NewSnapshotStrategy(spec.Snapshots...)
		if spec.Label != "" {
			s.name = spec.Label
		}
		return s, nil
	}
	return nil, eris.Errorf("acquire: unknown strategy %q", spec.Name)
}

// DefaultPlan is used when neither a plan file nor configured strategies
// exist: the three live strategies in their documented order.
func DefaultPlan() *Plan {
	return &Plan{Strategies: []Spec{
		{Name: KindDistrictKeyword},
		{Name: KindProximity},
		{Name: KindBulkText},
	}}
}
