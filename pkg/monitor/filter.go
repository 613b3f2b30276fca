package monitor

// FilterKind is the closed set of classification scopes a dashboard view
// can be narrowed to.
type FilterKind int

// Filter kinds, coarsest to finest.
const (
	FilterGlobal FilterKind = iota
	FilterProject
	FilterClient
	FilterChannel
	FilterFlow
)

// String returns the wire name of the filter kind.
func (k FilterKind) String() string {
	switch k {
	case FilterProject:
		return "project"
	case FilterClient:
		return "client"
	case FilterChannel:
		return "canal"
	case FilterFlow:
		return "flow"
	default:
		return "global"
	}
}

// ParseFilterKind maps a wire filter type to a FilterKind. Unknown types
// fall back to global; the second return value lets callers log the
// fallback instead of it passing silently.
func ParseFilterKind(s string) (FilterKind, bool) {
	switch s {
	case "global", "":
		return FilterGlobal, true
	case "project":
		return FilterProject, true
	case "client":
		return FilterClient, true
	case "canal":
		return FilterChannel, true
	case "flow":
		return FilterFlow, true
	case "server", "status":
		// Sidebar-only scopes: valid wire types that select UI panels,
		// not run records. They aggregate as global.
		return FilterGlobal, true
	default:
		return FilterGlobal, false
	}
}

// FilterContext narrows which runs participate in aggregation.
type FilterContext struct {
	Kind  FilterKind
	Value string
}

// Apply returns the runs matching the filter, preserving input order.
// A global context returns the input unchanged.
func (fc FilterContext) Apply(runs []Run) []Run {
	if fc.Kind == FilterGlobal {
		return runs
	}

	filtered := make([]Run, 0, len(runs))

	for _, run := range runs {
		if fc.matches(&run) {
			filtered = append(filtered, run)
		}
	}

	return filtered
}

func (fc FilterContext) matches(r *Run) bool {
	switch fc.Kind {
	case FilterProject:
		return r.Project == fc.Value
	case FilterClient:
		return r.Client == fc.Value
	case FilterChannel:
		return r.Channel == fc.Value
	case FilterFlow:
		return r.System == fc.Value
	default:
		return true
	}
}
