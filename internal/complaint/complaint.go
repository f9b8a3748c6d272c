// Package complaint defines the complaint record model and its SQLite store.
package complaint

import "time"

// Category is the complaint category enumeration.
type Category string

// Valid categories.
const (
	CategoryAcademic     Category = "Academic"
	CategoryFacilities   Category = "Facilities"
	CategoryHousing      Category = "Housing"
	CategoryITSupport    Category = "IT Support"
	CategoryFinancialAid Category = "Financial Aid"
	CategoryCampusLife   Category = "Campus Life"
	CategoryOther        Category = "Other"
)

// Categories returns all valid categories in display order.
func Categories() []Category {
	return []Category{
		CategoryAcademic,
		CategoryFacilities,
		CategoryHousing,
		CategoryITSupport,
		CategoryFinancialAid,
		CategoryCampusLife,
		CategoryOther,
	}
}

// ValidCategory reports whether s is a member of the category enumeration.
func ValidCategory(s string) bool {
	for _, c := range Categories() {
		if string(c) == s {
			return true
		}
	}
	return false
}

// Urgency is the complaint urgency enumeration.
type Urgency string

// Valid urgency levels, lowest to highest.
const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// Indicator returns the urgency with its symbolic marker, or "Not set"
// for an empty urgency. Used in capability output rendering.
func (u Urgency) Indicator() string {
	switch u {
	case UrgencyCritical:
		return "🔴 Critical"
	case UrgencyHigh:
		return "🟠 High"
	case UrgencyMedium:
		return "🟡 Medium"
	case UrgencyLow:
		return "🟢 Low"
	case "":
		return "Not set"
	default:
		return string(u)
	}
}

// Status is the complaint workflow status enumeration.
type Status string

// Valid statuses. Transitions are unconditional: any status may move to
// any other status.
const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

// Statuses returns all valid statuses in workflow order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusResolved, StatusClosed}
}

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s string) bool {
	for _, st := range Statuses() {
		if string(st) == s {
			return true
		}
	}
	return false
}

// Indicator returns a symbolic marker for the status.
func (s Status) Indicator() string {
	switch s {
	case StatusResolved:
		return "✅"
	case StatusClosed:
		return "🔒"
	case StatusInProgress:
		return "⏳"
	default:
		return "🔄"
	}
}

// Complaint is one complaint record. AssignedTo and Response are empty
// strings until set.
type Complaint struct {
	ID         int64     `json:"id"`
	Text       string    `json:"complaint_text"`
	Category   Category  `json:"category"`
	Urgency    Urgency   `json:"urgency"`
	Status     Status    `json:"status"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Response   string    `json:"response,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
