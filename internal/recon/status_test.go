package recon

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		pkg  string
		ord  string
		want Label
	}{
		{name: "delivered dominates order status", pkg: "D", ord: "V", want: LabelHaveBeenReceived},
		{name: "delivered with empty order", pkg: "D", ord: "", want: LabelHaveBeenReceived},
		{name: "package returned dominates", pkg: "R", ord: "R", want: LabelReturned},
		{name: "package returned with empty order", pkg: "R", ord: "", want: LabelReturned},
		{name: "package cancelled", pkg: "C", ord: "", want: LabelDeleted},
		{name: "order cancelled", pkg: "T", ord: "C", want: LabelDeleted},
		{name: "order deleted", pkg: "F", ord: "X", want: LabelDeleted},
		{name: "abnormal package", pkg: "A", ord: "R", want: LabelAbnormal},
		{name: "order returned", pkg: "T", ord: "B", want: LabelReturned},
		{name: "order claimed", pkg: "", ord: "K", want: LabelReturned},
		{name: "order signed", pkg: "T", ord: "V", want: LabelHaveBeenReceived},
		{name: "in transit refined to received", pkg: "T", ord: "R", want: LabelReceived},
		{name: "in transit refined to shipped", pkg: "T", ord: "D", want: LabelShipped},
		{name: "in transit fallback", pkg: "T", ord: "", want: LabelInTransit},
		{name: "in transit with unrecognized order", pkg: "T", ord: "Z", want: LabelInTransit},
		{name: "forecasted refined to scheduled", pkg: "F", ord: "S", want: LabelScheduled},
		{name: "forecasted refined to processed", pkg: "F", ord: "P", want: LabelProcessed},
		{name: "forecasted fallback", pkg: "F", ord: "", want: LabelForecasted},
		{name: "package not found", pkg: "N", ord: "", want: LabelNotFound},
		{name: "order draft", pkg: "", ord: "W", want: LabelNew},
		{name: "nothing known", pkg: "", ord: "", want: LabelUnknown},
		{name: "unrecognized codes", pkg: "Z", ord: "Z", want: LabelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.pkg, tt.ord); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.pkg, tt.ord, got, tt.want)
			}
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	// Same inputs always produce the same label.
	for i := 0; i < 100; i++ {
		if got := Resolve("T", "R"); got != LabelReceived {
			t.Fatalf("Resolve(T, R) = %q on call %d, want %q", got, i, LabelReceived)
		}
	}
}

func TestNeedsAlert(t *testing.T) {
	alerting := map[Label]bool{
		LabelReturned: true,
		LabelDeleted:  true,
		LabelAbnormal: true,
	}
	all := []Label{
		LabelHaveBeenReceived, LabelReturned, LabelDeleted, LabelAbnormal,
		LabelInTransit, LabelReceived, LabelShipped, LabelScheduled,
		LabelProcessed, LabelForecasted, LabelNotFound, LabelNew, LabelUnknown,
	}
	for _, l := range all {
		if got := l.NeedsAlert(); got != alerting[l] {
			t.Errorf("%q NeedsAlert = %v, want %v", l, got, alerting[l])
		}
	}
}
