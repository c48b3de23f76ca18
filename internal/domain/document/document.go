// Package document models the artifacts a student uploads in support of an
// application and decides whether an application's paperwork is complete.
package document

import (
	"strings"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

const domainName = "document"

// Type is a tag from the closed document vocabulary.
type Type string

const (
	TypeApplicationLetter         Type = "application_letter"
	TypeCertificateOfRegistration Type = "certificate_of_registration"
	TypeCertificateOfGrades       Type = "certificate_of_grades"
	TypeIndigencyCertificate      Type = "indigency_certificate"
	TypeIncomeTaxReturn           Type = "income_tax_return"
	TypeGoodMoralCertificate      Type = "good_moral_certificate"
	TypeRecommendationLetter      Type = "recommendation_letter"
	TypeMembershipCertificate     Type = "membership_certificate"
	TypeScheduleOfClasses         Type = "schedule_of_classes"
	TypeBirthCertificate          Type = "birth_certificate"
	TypeValidID                   Type = "valid_id"
	TypeIDPhoto                   Type = "id_photo"
)

var vocabulary = map[Type]string{
	TypeApplicationLetter:         "Application Letter",
	TypeCertificateOfRegistration: "Certificate of Registration",
	TypeCertificateOfGrades:       "Certificate of Grades",
	TypeIndigencyCertificate:      "Certificate of Indigency",
	TypeIncomeTaxReturn:           "Income Tax Return",
	TypeGoodMoralCertificate:      "Certificate of Good Moral Character",
	TypeRecommendationLetter:      "Recommendation Letter",
	TypeMembershipCertificate:     "Certificate of Membership",
	TypeScheduleOfClasses:         "Schedule of Classes",
	TypeBirthCertificate:          "Birth Certificate",
	TypeValidID:                   "Valid ID",
	TypeIDPhoto:                   "2x2 ID Photo",
}

// genericTypes may be attached to any application regardless of what the
// scholarship requires.
var genericTypes = map[Type]bool{
	TypeValidID:          true,
	TypeIDPhoto:          true,
	TypeBirthCertificate: true,
}

// IsValid checks that the type belongs to the vocabulary.
func (t Type) IsValid() bool {
	_, ok := vocabulary[t]
	return ok
}

// Label returns the human-readable name.
func (t Type) Label() string {
	if l, ok := vocabulary[t]; ok {
		return l
	}
	return string(t)
}

// IsGeneric reports whether the type is allowed on every application.
func (t Type) IsGeneric() bool {
	return genericTypes[t]
}

// AllowedFor reports whether t may be attached to an application whose
// scholarship requires the given types.
func (t Type) AllowedFor(required []Type) bool {
	if !t.IsValid() {
		return false
	}
	if t.IsGeneric() {
		return true
	}
	for _, r := range required {
		if r == t {
			return true
		}
	}
	return false
}

// ParseType validates and normalises a document type tag.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	if !t.IsValid() {
		return "", shared.Errorf(domainName, "ParseType", shared.ErrValidation, "unknown document type %q", value)
	}
	return t, nil
}

// Status is the verification status of a document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusVerified || s == StatusRejected
}

// Document is one uploaded artifact tied to exactly one application.
type Document struct {
	ID              string
	ApplicationID   string
	Type            Type
	Status          Status
	FileRef         string // reference returned by the file store
	OriginalName    string
	VerifiedBy      string
	VerifiedAt      *time.Time
	RejectionReason string
	UploadedAt      time.Time
	UpdatedAt       time.Time
	Version         int
}

// NewParams holds the input for registering an upload.
type NewParams struct {
	ID            string
	ApplicationID string
	Type          Type
	FileRef       string
	OriginalName  string
	UploaderID    string
	StudentID     string
}

// Outcome is the result of a document operation.
type Outcome struct {
	Document *Document
	shared.Changes
}

// New registers an uploaded document in pending state. required is the
// scholarship's required-document list.
func New(p NewParams, required []Type, now time.Time) (*Outcome, error) {
	const op = "New"

	if p.ID == "" || p.ApplicationID == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "document and application ids are required")
	}
	if strings.TrimSpace(p.FileRef) == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "file reference is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown document type %q", p.Type)
	}
	if !p.Type.AllowedFor(required) {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "%s is not required by this scholarship", p.Type.Label())
	}

	doc := &Document{
		ID:            p.ID,
		ApplicationID: p.ApplicationID,
		Type:          p.Type,
		Status:        StatusPending,
		FileRef:       p.FileRef,
		OriginalName:  p.OriginalName,
		UploadedAt:    now,
		UpdatedAt:     now,
		Version:       1,
	}

	out := &Outcome{Document: doc}
	out.Audit(p.UploaderID, "document.uploaded", domainName, doc.ID, nil, map[string]any{
		"application_id": doc.ApplicationID,
		"type":           string(doc.Type),
	})
	out.Emit(shared.NewDocumentEvent(shared.EventDocumentUploaded, doc.ID, doc.ApplicationID, string(doc.Type), p.UploaderID, now))
	return out, nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// Verify marks a pending document as verified. studentID receives the
// notification.
func (d *Document) Verify(actorID, studentID string, now time.Time) (*Outcome, error) {
	const op = "Verify"

	if d.Status != StatusPending {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "document is %s, only pending documents can be verified", d.Status)
	}

	next := d.Clone()
	next.Status = StatusVerified
	next.VerifiedBy = actorID
	next.VerifiedAt = &now
	next.RejectionReason = ""
	next.UpdatedAt = now

	out := &Outcome{Document: next}
	out.Audit(actorID, "document.verified", domainName, d.ID,
		map[string]any{"status": string(d.Status)},
		map[string]any{"status": string(next.Status)})
	if studentID != "" {
		out.Notify(studentID, "Document verified",
			d.Type.Label()+" has been verified.", shared.NotificationSuccess)
	}
	out.Emit(shared.NewDocumentEvent(shared.EventDocumentVerified, d.ID, d.ApplicationID, string(d.Type), actorID, now))
	return out, nil
}

// Reject marks a pending document as rejected. A reason is mandatory.
func (d *Document) Reject(actorID, studentID, reason string, now time.Time) (*Outcome, error) {
	const op = "Reject"

	if err := shared.RequireReason(domainName, op, reason); err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "document is %s, only pending documents can be rejected", d.Status)
	}

	next := d.Clone()
	next.Status = StatusRejected
	next.VerifiedBy = actorID
	next.VerifiedAt = &now
	next.RejectionReason = strings.TrimSpace(reason)
	next.UpdatedAt = now

	out := &Outcome{Document: next}
	out.Audit(actorID, "document.rejected", domainName, d.ID,
		map[string]any{"status": string(d.Status)},
		map[string]any{"status": string(next.Status), "reason": next.RejectionReason})
	if studentID != "" {
		out.Notify(studentID, "Document rejected",
			d.Type.Label()+" was rejected: "+next.RejectionReason+". Please upload a new copy.", shared.NotificationWarning)
	}
	ev := shared.NewDocumentEvent(shared.EventDocumentRejected, d.ID, d.ApplicationID, string(d.Type), actorID, now)
	ev.Reason = next.RejectionReason
	out.Emit(ev)
	return out, nil
}
