package recon

// Raw carrier package status codes.
const (
	PackageDelivered  = "D"
	PackageReturned   = "R"
	PackageCancelled  = "C"
	PackageAbnormal   = "A"
	PackageInTransit  = "T"
	PackageForecasted = "F"
	PackageNotFound   = "N"
)

// Raw ERP order status codes, as Ecount reports them.
const (
	OrderCancelled  = "C"
	OrderDeleted    = "X"
	OrderReturned   = "B"
	OrderClaimed    = "K"
	OrderSigned     = "V"
	OrderReceived   = "R"
	OrderOutOfStock = "D"
	OrderScheduled  = "S"
	OrderProcessed  = "P"
	OrderDraft      = "W"
)

// Label is the canonical, ERP-agnostic shipment status derived from the raw
// carrier and ERP codes.
type Label string

const (
	LabelHaveBeenReceived Label = "Have been received"
	LabelReturned         Label = "Returned"
	LabelDeleted          Label = "Deleted"
	LabelAbnormal         Label = "Abnormal"
	LabelInTransit        Label = "In Transit"
	LabelReceived         Label = "Received"
	LabelShipped          Label = "Shipped"
	LabelScheduled        Label = "Scheduled"
	LabelProcessed        Label = "Processed"
	LabelForecasted       Label = "Forecasted"
	LabelNotFound         Label = "Not Found"
	LabelNew              Label = "New"
	LabelUnknown          Label = "Unknown"
)

// Resolve maps a raw carrier package status and a raw ERP order status to one
// canonical label. Rules are priority-ordered and the first match wins: some
// package statuses dominate regardless of the order status, and several
// (package, order) combinations collapse to the same label. Empty strings
// stand for an absent code. Resolve is a pure function.
func Resolve(pkg, ord string) Label {
	switch {
	case pkg == PackageDelivered:
		return LabelHaveBeenReceived
	case pkg == PackageReturned:
		return LabelReturned
	case pkg == PackageCancelled || ord == OrderCancelled || ord == OrderDeleted:
		return LabelDeleted
	case pkg == PackageAbnormal:
		return LabelAbnormal
	case ord == OrderReturned || ord == OrderClaimed:
		return LabelReturned
	case ord == OrderSigned:
		return LabelHaveBeenReceived
	case pkg == PackageInTransit:
		switch ord {
		case OrderReceived:
			return LabelReceived
		case OrderOutOfStock:
			return LabelShipped
		default:
			return LabelInTransit
		}
	case pkg == PackageForecasted:
		switch ord {
		case OrderScheduled:
			return LabelScheduled
		case OrderProcessed:
			return LabelProcessed
		default:
			return LabelForecasted
		}
	case pkg == PackageNotFound:
		return LabelNotFound
	case ord == OrderDraft:
		return LabelNew
	default:
		return LabelUnknown
	}
}

// NeedsAlert reports whether a transition into this label pages the operators.
func (l Label) NeedsAlert() bool {
	switch l {
	case LabelReturned, LabelDeleted, LabelAbnormal:
		return true
	}
	return false
}
