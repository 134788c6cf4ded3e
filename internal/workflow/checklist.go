// Package workflow holds the pure rules of the report lifecycle: checklist
// evaluation, the status state machine and the authorization matrix.
package workflow

import (
	"math"
	"strings"

	"github.com/regdesk/backend/internal/models"
)

// Subject is what checklist rules inspect: a report and its latest analysis, if any
type Subject struct {
	Report   *models.Report
	Analysis *models.ReportAnalysis
}

// Rule is one checklist entry
type Rule struct {
	ID       string
	Label    string
	Required bool
	Check    func(Subject) bool
}

// RuleSet is the ordered list of rules for a report type
type RuleSet []Rule

// DefaultRules apply to every report type without its own rule set
var DefaultRules = RuleSet{
	{
		ID:       "title",
		Label:    "Title provided",
		Required: true,
		Check: func(s Subject) bool {
			return len(strings.TrimSpace(s.Report.Title)) > 3
		},
	},
	{
		ID:       "description",
		Label:    "Description provided",
		Required: true,
		Check: func(s Subject) bool {
			return len(strings.TrimSpace(s.Report.Description)) > 10
		},
	},
	{
		ID:       "file",
		Label:    "File attached",
		Required: true,
		Check: func(s Subject) bool {
			return s.Report.HasFile()
		},
	},
	{
		ID:       "type",
		Label:    "Report type selected",
		Required: true,
		Check: func(s Subject) bool {
			return s.Report.ReportType != ""
		},
	},
	{
		ID:       "ai_analysis",
		Label:    "AI analysis passed",
		Required: false,
		Check: func(s Subject) bool {
			return s.Analysis.Passed()
		},
	},
}

// Evaluator computes checklists from rule sets keyed by report type
type Evaluator struct {
	byType   map[models.ReportType]RuleSet
	fallback RuleSet
}

// NewEvaluator creates an evaluator using DefaultRules for unregistered types
func NewEvaluator() *Evaluator {
	return &Evaluator{
		byType:   make(map[models.ReportType]RuleSet),
		fallback: DefaultRules,
	}
}

// Register sets the rule set for a report type
func (e *Evaluator) Register(reportType models.ReportType, rules RuleSet) {
	e.byType[reportType] = rules
}

// RulesFor returns the rule set applied to reportType
func (e *Evaluator) RulesFor(reportType models.ReportType) RuleSet {
	if rules, ok := e.byType[reportType]; ok {
		return rules
	}
	return e.fallback
}

// Evaluate runs the rules for the subject's report type. It has no side effects.
func (e *Evaluator) Evaluate(subject Subject) models.ChecklistResult {
	rules := e.RulesFor(subject.Report.ReportType)
	items := make([]models.ChecklistItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, models.ChecklistItem{
			ID:        rule.ID,
			Label:     rule.Label,
			Required:  rule.Required,
			Completed: rule.Check(subject),
		})
	}
	return Summarize(items)
}

// Summarize derives counts, percentage and can_submit from evaluated items
func Summarize(items []models.ChecklistItem) models.ChecklistResult {
	result := models.ChecklistResult{
		Items:      items,
		TotalItems: len(items),
	}
	for _, item := range items {
		if item.Completed {
			result.CompletedItems++
		}
		if item.Required {
			result.RequiredItems++
			if item.Completed {
				result.CompletedRequired++
			}
		}
	}

	if result.TotalItems == 0 {
		result.CompletionPercentage = 100
	} else {
		result.CompletionPercentage = int(math.Round(100 * float64(result.CompletedItems) / float64(result.TotalItems)))
	}
	result.CanSubmit = result.CompletedRequired == result.RequiredItems
	return result
}
