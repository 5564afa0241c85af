package models

// FieldClass names a known document field set.
type FieldClass string

const (
	FieldsInvoice FieldClass = "invoice"
	FieldsExpense FieldClass = "expense"
	FieldsGeneric FieldClass = "generic"
)

// knownFieldKeys lists the fields each class is expected to carry. Anything
// outside the set lands in the extras bag instead of being dropped.
var knownFieldKeys = map[FieldClass][]string{
	FieldsInvoice: {
		"vendor", "issuer", "invoiceNumber", "issueDate", "dueDate",
		"totalAmount", "taxAmount", "currency", "category",
	},
	FieldsExpense: {
		"vendor", "description", "expenseDate", "totalAmount", "currency",
		"category", "paymentMethod",
	},
	FieldsGeneric: {
		"title", "date", "totalAmount", "currency", "category", "description",
	},
}

// DocumentFields splits a raw extraction map into the known fields of a class
// and an explicit extras bag, so unexpected keys survive merging.
type DocumentFields struct {
	Class  FieldClass             `json:"class"`
	Known  map[string]interface{} `json:"known"`
	Extras map[string]interface{} `json:"extras,omitempty"`
}

// ClassForDocumentType maps a document type to its field class.
func ClassForDocumentType(docType string) FieldClass {
	switch docType {
	case "invoice", "receipt", "statement":
		return FieldsInvoice
	case "expense", "tax":
		return FieldsExpense
	default:
		return FieldsGeneric
	}
}

// SplitFields partitions data into known fields for class and extras.
// Nil values are skipped.
func SplitFields(class FieldClass, data map[string]interface{}) DocumentFields {
	keys, ok := knownFieldKeys[class]
	if !ok {
		keys = knownFieldKeys[FieldsGeneric]
		class = FieldsGeneric
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	out := DocumentFields{
		Class: class,
		Known: make(map[string]interface{}),
	}
	for k, v := range data {
		if v == nil {
			continue
		}
		if _, ok := keySet[k]; ok {
			out.Known[k] = v
		} else {
			if out.Extras == nil {
				out.Extras = make(map[string]interface{})
			}
			out.Extras[k] = v
		}
	}
	return out
}

// Flatten merges known fields and extras back into one map.
func (f DocumentFields) Flatten() map[string]interface{} {
	out := make(map[string]interface{}, len(f.Known)+len(f.Extras))
	for k, v := range f.Known {
		out[k] = v
	}
	for k, v := range f.Extras {
		out[k] = v
	}
	return out
}
