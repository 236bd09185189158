package equiv

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Report is the outcome of a passing comparison.
type Report struct {
	Threshold       float64   `json:"threshold"`
	Verdicts        []Verdict `json:"verdicts"`
	Excluded        []string  `json:"excluded,omitempty"`
	OnlyInReference []string  `json:"only_in_reference,omitempty"`
	OnlyInCandidate []string  `json:"only_in_candidate,omitempty"`
}

// Top returns the most marginal verdicts: all of them when verbose, else at
// most DefaultTopN.
func (r *Report) Top(verbose bool) []Verdict {
	if verbose || len(r.Verdicts) <= DefaultTopN {
		return r.Verdicts
	}
	return r.Verdicts[:DefaultTopN]
}

// Render writes a human-readable summary of r.
func (r *Report) Render(w io.Writer, verbose bool) error {
	var b strings.Builder
	for _, c := range r.OnlyInReference {
		fmt.Fprintf(&b, "column %s is in reference but not in candidate\n", c)
	}
	for _, c := range r.OnlyInCandidate {
		fmt.Fprintf(&b, "column %s is in candidate but not in reference\n", c)
	}
	if len(r.Excluded) > 0 {
		fmt.Fprintf(&b, "excluded: %s\n", strings.Join(r.Excluded, ", "))
	}

	top := r.Top(verbose)
	fmt.Fprintf(&b, "compared %d columns at threshold %g; showing %d\n",
		len(r.Verdicts), r.Threshold, len(top))

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "P\tD\tCOLUMN")
	for _, v := range top {
		fmt.Fprintf(tw, "%.6g\t%.6g\t%s\n", v.P, v.D, v.Column)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}
