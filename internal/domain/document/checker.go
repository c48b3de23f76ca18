package document

import "context"

// Report is the completeness report for one application.
type Report struct {
	Complete            bool       `json:"complete"`
	UploadedCount       int        `json:"uploaded_count"`
	VerifiedCount       int        `json:"verified_count"`
	Missing             []Type     `json:"missing"`
	PendingVerification []Document `json:"pending_verification"`
	// Required types whose every upload was rejected.
	Rejected []Type `json:"rejected"`
}

// Checker computes document completeness. It is stateless.
type Checker struct{}

// NewChecker creates a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check compares the uploaded documents against the required types.
// Missing is the set difference required − uploaded types, in the order of
// required. Complete additionally requires a verified upload for every
// required type.
func (c *Checker) Check(required []Type, docs []Document) Report {
	uploaded := make(map[Type]bool, len(docs))
	verified := make(map[Type]bool, len(docs))
	pendingOrVerified := make(map[Type]bool, len(docs))

	report := Report{
		UploadedCount:       len(docs),
		Missing:             []Type{},
		PendingVerification: []Document{},
		Rejected:            []Type{},
	}

	for _, d := range docs {
		uploaded[d.Type] = true
		switch d.Status {
		case StatusVerified:
			report.VerifiedCount++
			verified[d.Type] = true
			pendingOrVerified[d.Type] = true
		case StatusPending:
			report.PendingVerification = append(report.PendingVerification, d)
			pendingOrVerified[d.Type] = true
		}
	}

	seen := make(map[Type]bool, len(required))
	allVerified := true
	for _, t := range required {
		if seen[t] {
			continue
		}
		seen[t] = true

		switch {
		case !uploaded[t]:
			report.Missing = append(report.Missing, t)
			allVerified = false
		case !verified[t]:
			allVerified = false
			if !pendingOrVerified[t] {
				report.Rejected = append(report.Rejected, t)
			}
		}
	}

	report.Complete = len(report.Missing) == 0 && allVerified
	return report
}

// IsComplete is shorthand for Check(...).Complete.
func (c *Checker) IsComplete(required []Type, docs []Document) bool {
	return c.Check(required, docs).Complete
}

// Repository persists documents.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	// Update saves doc if its stored version equals expectedVersion.
	Update(ctx context.Context, doc *Document, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*Document, error)
	ListByApplication(ctx context.Context, applicationID string) ([]Document, error)
}
