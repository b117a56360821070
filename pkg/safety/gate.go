package safety

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// Category classifies a destructive operation by the tool that would
// perform it (spec.md §4.5(c)).
type Category string

const (
	CategoryFileDeletion     Category = "file_deletion"
	CategoryFileOverwrite    Category = "file_overwrite"
	CategoryDependencyChange Category = "dependency_change"
	CategoryDatabaseChange   Category = "database_change"
	CategoryConfigChange     Category = "config_change"
)

// Risk is the gate's risk classification, ordered safe<low<medium<high<critical.
type Risk string

const (
	RiskSafe     Risk = "safe"
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

var riskRank = map[Risk]int{
	RiskSafe: 0, RiskLow: 1, RiskMedium: 2, RiskHigh: 3, RiskCritical: 4,
}

// categoryRisk is the default risk for each category before
// reversibility adjustment.
var categoryRisk = map[Category]struct {
	risk         Risk
	irreversible bool
}{
	CategoryFileDeletion:     {RiskHigh, true},
	CategoryFileOverwrite:    {RiskMedium, false},
	CategoryDependencyChange: {RiskMedium, false},
	CategoryDatabaseChange:   {RiskHigh, true},
	CategoryConfigChange:     {RiskMedium, false},
}

// ClassifyTool maps a tool name to a destructive-operation category,
// or ok=false if the tool is not considered destructive.
func ClassifyTool(toolName string) (Category, bool) {
	switch {
	case toolName == "execute_command" || toolName == "shell":
		return CategoryFileDeletion, true
	case strings.Contains(toolName, "write_file") || strings.Contains(toolName, "overwrite"):
		return CategoryFileOverwrite, true
	case strings.Contains(toolName, "dependency") || strings.Contains(toolName, "package"):
		return CategoryDependencyChange, true
	case strings.Contains(toolName, "database") || strings.Contains(toolName, "migration"):
		return CategoryDatabaseChange, true
	case strings.Contains(toolName, "config"):
		return CategoryConfigChange, true
	default:
		return "", false
	}
}

// operationRecord is a deduplication entry: the same (category,
// description, touched files) seen twice recently is rejected
// (spec.md §4.5(c)).
type operationRecord struct {
	category    Category
	description string
	files       string
	at          time.Time
}

const dedupWindow = 10 * time.Minute

// DestructiveGate classifies and, where warranted, refuses
// destructive operations.
type DestructiveGate struct {
	mu      sync.Mutex
	history []operationRecord
}

// NewDestructiveGate constructs an empty gate.
func NewDestructiveGate() *DestructiveGate {
	return &DestructiveGate{}
}

// Evaluate classifies an operation identified by category,
// description, and the files it would touch, and returns the risk
// plus a non-nil error when the gate refuses it.
func (g *DestructiveGate) Evaluate(category Category, description string, files []string) (Risk, error) {
	info, known := categoryRisk[category]
	if !known {
		return RiskSafe, nil
	}

	joined := strings.Join(files, ",")

	g.mu.Lock()
	seenTwice := false
	count := 0
	cutoff := time.Now().Add(-dedupWindow)
	fresh := g.history[:0]
	for _, r := range g.history {
		if r.at.Before(cutoff) {
			continue
		}
		fresh = append(fresh, r)
		if r.category == category && r.description == description && r.files == joined {
			count++
		}
	}
	g.history = fresh
	g.history = append(g.history, operationRecord{category: category, description: description, files: joined, at: time.Now()})
	if count >= 2 {
		seenTwice = true
	}
	g.mu.Unlock()

	risk := info.risk
	if risk == RiskHigh || risk == RiskCritical {
		return risk, &corerr.DestructiveBlockedError{Category: string(category), Risk: string(risk), Reason: "risk too high"}
	}
	if risk == RiskMedium && info.irreversible {
		return risk, &corerr.DestructiveBlockedError{Category: string(category), Risk: string(risk), Reason: "irreversible medium-risk operation"}
	}
	if seenTwice {
		return risk, &corerr.DestructiveBlockedError{Category: string(category), Risk: string(risk), Reason: "duplicate operation recorded twice recently"}
	}
	return risk, nil
}

// ShouldAutoApprove reports whether a tool call at risk may proceed
// without explicit confirmation: false for critical, else true iff
// risk <= threshold (spec.md §4.5).
func ShouldAutoApprove(risk, threshold Risk) bool {
	if risk == RiskCritical {
		return false
	}
	return riskRank[risk] <= riskRank[threshold]
}

// Verdict is the combined result of checkSafety across all three
// layers (spec.md §4.5).
type Verdict struct {
	Allowed       bool
	ResourceBlock bool
	LoopDetected  LoopType
	Risk          Risk
	Reason        string
}

// Core composes a ResourceGuard, GuardrailMonitor, and
// DestructiveGate into the single checkSafety verdict.
type Core struct {
	Resource   *ResourceGuard
	Guardrails *GuardrailMonitor
	Gate       *DestructiveGate
}

// NewCore wires the three safety layers for one session.
func NewCore(sessionID string, bus collab.EventBus, budget ResourceBudget, autoBreakLoops bool) *Core {
	return &Core{
		Resource:   NewResourceGuard(sessionID, bus, budget),
		Guardrails: NewGuardrailMonitor(sessionID, bus, autoBreakLoops),
		Gate:       NewDestructiveGate(),
	}
}

// CheckSafety runs the resource guard and guardrail detectors
// unconditionally, and additionally evaluates the destructive gate
// when op names a destructive category.
func (c *Core) CheckSafety(ctx context.Context, op *struct {
	Category    Category
	Description string
	Files       []string
}) Verdict {
	exceeded, axis := c.Resource.Check(ctx)
	if exceeded {
		return Verdict{Allowed: false, ResourceBlock: true, Reason: "resource axis exceeded: " + axis}
	}

	if loopType, found := c.Guardrails.Detect(ctx); found {
		return Verdict{Allowed: false, LoopDetected: loopType, Reason: "behavioral guard: " + string(loopType)}
	}

	if op != nil {
		risk, err := c.Gate.Evaluate(op.Category, op.Description, op.Files)
		if err != nil {
			return Verdict{Allowed: false, Risk: risk, Reason: err.Error()}
		}
		return Verdict{Allowed: true, Risk: risk}
	}

	return Verdict{Allowed: true}
}
