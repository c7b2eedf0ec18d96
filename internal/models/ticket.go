package models

// Issue mirrors the ZIssue resource of the ticketing API. Extra body
// attributes extracted from the mail are merged into Fields.
type Issue struct {
	ID          string            `json:"id,omitempty"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	AuthorID    string            `json:"authorId,omitempty"`
	StatusID    string            `json:"statusId,omitempty"`
	CategoryID  string            `json:"categoryId,omitempty"`
	PriorityID  string            `json:"priorityId,omitempty"`
	SourceID    string            `json:"sourceId,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Comment mirrors the ZComment resource. AuthorID stays empty for
// anonymous comments; ForeignKey carries the SRQ id of the parent issue.
type Comment struct {
	ID         string `json:"id,omitempty"`
	Comment    string `json:"comment"`
	AuthorID   string `json:"authorId,omitempty"`
	ForeignKey string `json:"foreignKey"`
}

// Person is the ticketing person record used for author resolution.
type Person struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
