package models

// ChecklistItem is one pre-submission check. Completed is derived from report content.
type ChecklistItem struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	Completed bool   `json:"completed"`
}

// ChecklistResult is the evaluated checklist of a single report
type ChecklistResult struct {
	Items                []ChecklistItem `json:"items"`
	CompletedItems       int             `json:"completed_items"`
	TotalItems           int             `json:"total_items"`
	RequiredItems        int             `json:"required_items"`
	CompletedRequired    int             `json:"completed_required"`
	CompletionPercentage int             `json:"completion_percentage"`
	CanSubmit            bool            `json:"can_submit"`
}

// MissingRequired returns the labels of required items not yet completed
func (r ChecklistResult) MissingRequired() []string {
	var missing []string
	for _, item := range r.Items {
		if item.Required && !item.Completed {
			missing = append(missing, item.Label)
		}
	}
	return missing
}
