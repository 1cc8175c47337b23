package module

// Outcome classifies the result of one load candidate.
type Outcome uint8

const (
	// OutcomeSuccess means the module loaded and its entry point ran.
	OutcomeSuccess Outcome = iota

	// OutcomeLoadFailed means the file could not be read or executed.
	OutcomeLoadFailed

	// OutcomeMissingEntryPoint means the file loaded but defines no
	// register function.
	OutcomeMissingEntryPoint

	// OutcomeInvokeFailed means the entry point raised.
	OutcomeInvokeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeLoadFailed:
		return "load failed"
	case OutcomeMissingEntryPoint:
		return "missing entry point"
	case OutcomeInvokeFailed:
		return "entry point failed"
	default:
		return "unknown"
	}
}

// Record is the outcome for one discovered module.
type Record struct {
	File    string
	Outcome Outcome
	Err     error
}

// Report enumerates load outcomes for a whole pass. The host decides
// whether any failures are fatal; the loaders themselves never abort.
type Report struct {
	Records []Record
}

func (r *Report) add(rec Record) {
	r.Records = append(r.Records, rec)
}

// Merge appends another report's records.
func (r *Report) Merge(other *Report) {
	if other != nil {
		r.Records = append(r.Records, other.Records...)
	}
}

// Loaded returns the names of modules that registered successfully.
func (r *Report) Loaded() []string {
	var names []string
	for _, rec := range r.Records {
		if rec.Outcome == OutcomeSuccess {
			names = append(names, rec.File)
		}
	}
	return names
}

// Failed returns the records of modules that did not register.
func (r *Report) Failed() []Record {
	var failed []Record
	for _, rec := range r.Records {
		if rec.Outcome != OutcomeSuccess {
			failed = append(failed, rec)
		}
	}
	return failed
}
