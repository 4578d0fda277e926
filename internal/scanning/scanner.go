package scanning

import (
	"context"
	"errors"
)

// NoData is the placeholder the model is told to emit for a field it cannot find.
const NoData = "정보 없음"

// Kind identifies what an analyzed image turned out to be
type Kind string

const (
	KindReceipt      Kind = "receipt"
	KindBusinessCard Kind = "business_card"
	KindError        Kind = "error"
)

// Field names for each kind
const (
	FieldStoreName       = "store_name"
	FieldTotalAmount     = "total_amount"
	FieldTransactionDate = "transaction_date"

	FieldName    = "name"
	FieldCompany = "company"
	FieldTitle   = "title"
	FieldPhone   = "phone"
	FieldEmail   = "email"

	FieldMessage = "message"
)

var (
	receiptFields      = []string{FieldStoreName, FieldTotalAmount, FieldTransactionDate}
	businessCardFields = []string{FieldName, FieldCompany, FieldTitle, FieldPhone, FieldEmail}
	errorFields        = []string{FieldMessage}
)

// ErrMissingAPIKey is returned by provider constructors when no credential is configured
var ErrMissingAPIKey = errors.New("api key is required")

// FieldsFor returns the exact field set for a kind, in display order.
// Unknown kinds have no fields.
func FieldsFor(kind Kind) []string {
	var fields []string
	switch kind {
	case KindReceipt:
		fields = receiptFields
	case KindBusinessCard:
		fields = businessCardFields
	case KindError:
		fields = errorFields
	default:
		return nil
	}
	return append([]string(nil), fields...)
}

// Result is the tagged outcome of analyzing one image
type Result struct {
	Kind   Kind              `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// ErrorResult builds an error-kind result carrying message
func ErrorResult(message string) Result {
	if message == "" {
		message = "unknown error"
	}
	return Result{
		Kind:   KindError,
		Fields: map[string]string{FieldMessage: message},
	}
}

// Message returns the diagnostic text of an error result
func (r Result) Message() string {
	return r.Fields[FieldMessage]
}

// Clone returns a copy whose Fields map can be mutated independently
func (r Result) Clone() Result {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Result{Kind: r.Kind, Fields: fields}
}

// Extractor analyzes an image and classifies it as a receipt or business card
type Extractor interface {
	// Analyze never fails; transport, auth and parse failures come back as a KindError result
	Analyze(ctx context.Context, imagePath string) Result
	// Close releases provider resources
	Close() error
}
