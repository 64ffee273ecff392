package solver

// Settings holds the three tunables spec.md §4.5 names: the iteration cap,
// the early-exit tolerance, and the export-strategy flag.
type Settings struct {
	iterations           int
	tolerance            float64
	forceGlobalTransform bool
}

// Option configures a Settings value at construction.
type Option func(*Settings)

// WithIterations overrides the iteration cap (default 10).
func WithIterations(n int) Option {
	return func(s *Settings) { s.iterations = n }
}

// WithTolerance overrides the early-exit residual-delta threshold (default 1e-5).
func WithTolerance(t float64) Option {
	return func(s *Settings) { s.tolerance = t }
}

// WithForceGlobalTransform sets the ForceGlobalTransform flag (default false).
// The flag is stored and returned by ForceGlobalTransform(); nothing in the
// solver or the registry reads it, and Registry.Export and
// Registry.ExportLocal behave the same whatever its value.
func WithForceGlobalTransform(b bool) Option {
	return func(s *Settings) { s.forceGlobalTransform = b }
}

// DefaultSettings returns spec.md §4.5's documented defaults.
func DefaultSettings() Settings {
	return Settings{iterations: 10, tolerance: 1e-5, forceGlobalTransform: false}
}

// NewSettings builds a Settings from DefaultSettings with opts applied.
func NewSettings(opts ...Option) Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Settings) Iterations() int           { return s.iterations }
func (s Settings) Tolerance() float64         { return s.tolerance }
func (s Settings) ForceGlobalTransform() bool { return s.forceGlobalTransform }

func (s *Settings) SetIterations(n int)            { s.iterations = n }
func (s *Settings) SetTolerance(t float64)         { s.tolerance = t }
func (s *Settings) SetForceGlobalTransform(b bool) { s.forceGlobalTransform = b }
