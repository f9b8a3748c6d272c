package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scope-engine/scope-assistant/internal/complaint"
	"github.com/scope-engine/scope-assistant/internal/search"
)

// searchTopK is the fixed number of similarity hits shown per search.
const searchTopK = 5

// timeFormat renders timestamps in capability output.
const timeFormat = "Jan 02, 2006 at 15:04"

// ComplaintStore is the slice of the complaint store the capabilities
// consume.
type ComplaintStore interface {
	Get(ctx context.Context, id int64) (*complaint.Complaint, error)
	ListByCategory(ctx context.Context, category complaint.Category) ([]*complaint.Complaint, error)
	UpdateStatus(ctx context.Context, id int64, status complaint.Status) (complaint.Status, *complaint.Complaint, error)
}

// Searcher ranks complaints by similarity to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]search.Hit, error)
}

// StatusChange describes one completed status transition.
type StatusChange struct {
	ID       int64
	Previous complaint.Status
	New      complaint.Status
	At       time.Time
}

// Notifier is told about completed status transitions. Implementations
// must not block for long and must swallow their own failures; a lost
// notification never fails the transition it describes.
type Notifier interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

// Option configures a Registry built by NewRegistry.
type Option func(*Registry)

// WithNotifier wires a status-change notifier into the update capability.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// NewRegistry creates the capability registry over the complaint store
// and similarity searcher.
func NewRegistry(store ComplaintStore, searcher Searcher, opts ...Option) *Registry {
	r := &Registry{
		tools:    make(map[string]*Tool),
		store:    store,
		searcher: searcher,
	}
	for _, o := range opts {
		o(r)
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "search_complaints",
		Description: "Search for complaints using keywords. Returns the closest matching complaints with their ID, category, urgency and status.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find complaints",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleSearchComplaints,
	})

	r.Register(&Tool{
		Name:        "get_complaint",
		Description: "Get details about a specific complaint by ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"complaint_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the complaint to retrieve",
				},
			},
			"required": []string{"complaint_id"},
		},
		Handler: r.handleGetComplaint,
	})

	r.Register(&Tool{
		Name:        "update_complaint_status",
		Description: "Update the status of a specific complaint. Valid statuses: Pending, In Progress, Resolved, Closed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"complaint_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the complaint to update",
				},
				"status": map[string]any{
					"type":        "string",
					"description": "The new status for the complaint (Pending, In Progress, Resolved, Closed)",
				},
			},
			"required": []string{"complaint_id", "status"},
		},
		Handler: r.handleUpdateComplaintStatus,
	})

	r.Register(&Tool{
		Name:        "get_complaint_stats_by_category",
		Description: "Get statistics about complaints in a category (Academic, Facilities, Housing, IT Support, Financial Aid, Campus Life, Other).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "The category to report on",
				},
			},
			"required": []string{"category"},
		},
		Handler: r.handleStatsByCategory,
	})
}

func (r *Registry) handleSearchComplaints(ctx context.Context, args map[string]any) (string, error) {
	query, _ := stringArg(args, "query")
	if strings.TrimSpace(query) == "" {
		return "⚠️ **Invalid query**. Please provide search keywords.", nil
	}

	hits, err := r.searcher.Search(ctx, query, searchTopK)
	if err != nil {
		return fmt.Sprintf("Error searching complaints: %v", err), nil
	}

	if len(hits) == 0 {
		return "No complaints found matching your query.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Search Results for: '%s'\n\n", query)
	b.WriteString("| ID | Preview | Category | Urgency | Status |\n")
	b.WriteString("|---|---------|----------|---------|--------|\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			h.ID, h.Preview, h.Category, h.Urgency.Indicator(), h.Status)
	}
	b.WriteString("\nTo view full details of a specific complaint, ask me to 'get complaint #ID'.")
	return b.String(), nil
}

func (r *Registry) handleGetComplaint(ctx context.Context, args map[string]any) (string, error) {
	id, _ := intArg(args, "complaint_id")

	c, err := r.store.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return fmt.Sprintf("No complaint found with ID %d", id), nil
		}
		return fmt.Sprintf("Error retrieving complaint: %v", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Complaint #%d\n\n", c.ID)
	fmt.Fprintf(&b, "**Complaint Text:**\n> %s\n\n", c.Text)

	b.WriteString("| Property | Value |\n")
	b.WriteString("|----------|-------|\n")
	fmt.Fprintf(&b, "| Category | %s |\n", orNotSet(string(c.Category)))
	fmt.Fprintf(&b, "| Urgency | %s |\n", c.Urgency.Indicator())
	fmt.Fprintf(&b, "| Status | %s |\n", c.Status)
	fmt.Fprintf(&b, "| Created | %s |\n", c.CreatedAt.Format(timeFormat))
	if c.AssignedTo != "" {
		fmt.Fprintf(&b, "| Assigned to | %s |\n", c.AssignedTo)
	}
	b.WriteString("\n")

	if c.Response != "" {
		fmt.Fprintf(&b, "**Response:**\n> %s\n\n", c.Response)
	} else {
		b.WriteString("**No response has been provided yet.**\n\n")
	}

	b.WriteString("You can update this complaint's status with 'update complaint status'.")
	return b.String(), nil
}

func (r *Registry) handleUpdateComplaintStatus(ctx context.Context, args map[string]any) (string, error) {
	id, _ := intArg(args, "complaint_id")
	statusStr, _ := stringArg(args, "status")

	// Validate before touching the store: an invalid status must cause
	// no mutation at all.
	if !complaint.ValidStatus(statusStr) {
		return fmt.Sprintf("⚠️ **Invalid status**. Please use one of: %s", joinStatuses()), nil
	}
	status := complaint.Status(statusStr)

	prev, updated, err := r.store.UpdateStatus(ctx, id, status)
	if err != nil {
		if isNotFound(err) {
			return fmt.Sprintf("❌ **Error**: No complaint found with ID %d", id), nil
		}
		return fmt.Sprintf("Error updating complaint status: %v", err), nil
	}

	if r.notifier != nil {
		r.notifier.StatusChanged(ctx, StatusChange{
			ID:       updated.ID,
			Previous: prev,
			New:      updated.Status,
			At:       updated.UpdatedAt,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s Status Updated\n\n", status.Indicator())
	fmt.Fprintf(&b, "**Complaint #%d** status has been changed:\n\n", updated.ID)
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Previous status | %s |\n", prev)
	fmt.Fprintf(&b, "| New status | **%s** |\n", updated.Status)
	fmt.Fprintf(&b, "| Updated at | %s |\n\n", updated.UpdatedAt.Format(timeFormat))
	b.WriteString("Would you like to view the full details of this complaint now?")
	return b.String(), nil
}

func (r *Registry) handleStatsByCategory(ctx context.Context, args map[string]any) (string, error) {
	categoryStr, _ := stringArg(args, "category")

	if !complaint.ValidCategory(categoryStr) {
		return fmt.Sprintf("⚠️ **Invalid category**. Please use one of: %s", joinCategories()), nil
	}
	category := complaint.Category(categoryStr)

	records, err := r.store.ListByCategory(ctx, category)
	if err != nil {
		return fmt.Sprintf("Error getting complaint statistics: %v", err), nil
	}

	if len(records) == 0 {
		return fmt.Sprintf("📊 No complaints found in category **%s**", category), nil
	}

	statusCounts := make(map[complaint.Status]int)
	urgencyCounts := make(map[complaint.Urgency]int)
	var assigned, hasResponse int
	for _, c := range records {
		statusCounts[c.Status]++
		urgencyCounts[c.Urgency]++
		if c.AssignedTo != "" {
			assigned++
		}
		if c.Response != "" {
			hasResponse++
		}
	}

	total := len(records)
	var b strings.Builder
	fmt.Fprintf(&b, "### 📊 Statistics for %s Complaints\n\n", category)
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total complaints | **%d** |\n", total)
	fmt.Fprintf(&b, "| Assigned | %d (%s%%) |\n", assigned, pct(assigned, total))
	fmt.Fprintf(&b, "| With responses | %d (%s%%) |\n\n", hasResponse, pct(hasResponse, total))

	b.WriteString("#### Status Distribution\n\n")
	b.WriteString("| Status | Count | Percentage |\n|--------|-------|------------|\n")
	for _, s := range complaint.Statuses() {
		if n := statusCounts[s]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d | %s%% |\n", s, n, pct(n, total))
		}
	}

	b.WriteString("\n#### Urgency Distribution\n\n")
	b.WriteString("| Urgency | Count | Percentage |\n|---------|-------|------------|\n")
	for _, u := range []complaint.Urgency{complaint.UrgencyCritical, complaint.UrgencyHigh, complaint.UrgencyMedium, complaint.UrgencyLow, ""} {
		if n := urgencyCounts[u]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d | %s%% |\n", u.Indicator(), n, pct(n, total))
		}
	}

	b.WriteString("\nWould you like to search for specific complaints in this category?")
	return b.String(), nil
}

// pct renders n/total as a percentage with one decimal place.
func pct(n, total int) string {
	if total == 0 {
		return "0"
	}
	v := float64(n) / float64(total) * 100
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}

func isNotFound(err error) bool {
	return errors.Is(err, complaint.ErrNotFound)
}

func joinStatuses() string {
	parts := make([]string, 0, 4)
	for _, s := range complaint.Statuses() {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}

func joinCategories() string {
	parts := make([]string, 0, 7)
	for _, c := range complaint.Categories() {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ", ")
}
