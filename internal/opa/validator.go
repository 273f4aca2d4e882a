package opa

import (
	"context"
	"embed"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

// Policies contribute human readable reasons to this set. A release may be
// published when the set is empty.
const denyQuery = "data.publisher.release.deny"

//go:embed policies/*.rego
var builtinPolicies embed.FS

// ReleaseInput is the document the release policies are evaluated against.
type ReleaseInput struct {
	ApprovalStatus   string     `json:"approvalStatus"`
	PublishScheduled *time.Time `json:"publishScheduled,omitempty"`
	Published        bool       `json:"published"`
	FileCount        int        `json:"fileCount"`
	DataSetCount     int        `json:"dataSetCount"`
}

// Validator evaluates the pre-publication rules written in rego.
type Validator struct {
	query rego.PreparedEvalQuery
}

// NewDefaultValidator compiles the policies shipped with the binary.
func NewDefaultValidator() (*Validator, error) {
	policies, err := loadPolicies(builtinPolicies, "policies")
	if err != nil {
		return nil, err
	}
	return NewValidator(policies)
}

// NewValidatorFromDir compiles the policies found under policiesDir. They
// replace the built in ones entirely.
func NewValidatorFromDir(policiesDir string) (*Validator, error) {
	policies, err := loadPolicies(os.DirFS(policiesDir), ".")
	if err != nil {
		return nil, err
	}
	return NewValidator(policies)
}

// NewValidator compiles policies, keyed by file name. Every module must be
// rego v1 and the set must define the deny rule.
func NewValidator(policies map[string]string) (*Validator, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("no policies provided for validation")
	}

	opts := []func(*rego.Rego){
		rego.Query(denyQuery),
		rego.SetRegoVersion(ast.RegoV1),
	}
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		opts = append(opts, rego.Module(name, policies[name]))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to compile policies: %w", err)
	}

	zap.S().Named("opa").Infow("release policies compiled", "modules", names)
	return &Validator{query: query}, nil
}

// ValidateRelease returns the deny messages produced for the release, sorted.
// An empty result means the release may be published.
func (v *Validator) ValidateRelease(ctx context.Context, release ReleaseInput, immediate bool, now time.Time) ([]string, error) {
	input := map[string]any{
		"release":   release,
		"immediate": immediate,
		"now":       now.UTC().Format(time.RFC3339Nano),
	}

	rs, err := v.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	// an undefined deny set allows the release
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return []string{}, nil
	}

	values, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("deny evaluated to %T, want a set", rs[0].Expressions[0].Value)
	}

	reasons := make([]string, 0, len(values))
	for _, value := range values {
		reason, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected deny reason type %T", value)
		}
		reasons = append(reasons, reason)
	}
	slices.Sort(reasons)
	return reasons, nil
}
