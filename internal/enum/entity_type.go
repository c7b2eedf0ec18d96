package enum

// EntityType names the ticketing resource an attachment belongs to,
// matching the ResourceName values of the ticketing API.
type EntityType string

const (
	EntityIssue   EntityType = "ZIssue"
	EntityComment EntityType = "ZComment"
)

func (t EntityType) String() string {
	return string(t)
}
