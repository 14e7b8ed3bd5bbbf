package dto

// SequentialRuleInput describes one step of a chain in create/update payloads.
type SequentialRuleInput struct {
	StepNumber         int     `json:"step_number" validate:"required,min=1"`
	ApproverRole       string  `json:"approver_role" validate:"required,oneof=manager finance director specific_user"`
	SpecificApproverID *string `json:"specific_approver_id,omitempty"`
	MinAmount          string  `json:"min_amount" validate:"required"`
	MaxAmount          *string `json:"max_amount,omitempty"`
	IsRequired         *bool   `json:"is_required,omitempty"`
}

// ConditionalRuleInput describes one conditional rule in create/update payloads.
type ConditionalRuleInput struct {
	Name                string  `json:"rule_name" validate:"required"`
	Type                string  `json:"rule_type" validate:"required,oneof=percentage specific_approver hybrid"`
	PercentageThreshold *int    `json:"percentage_threshold,omitempty"`
	SpecificApproverID  *string `json:"specific_approver_id,omitempty"`
	MinAmount           string  `json:"min_amount" validate:"required"`
	MaxAmount           *string `json:"max_amount,omitempty"`
}

// CreateWorkflowRequest creates a workflow with its rule sets in one call.
type CreateWorkflowRequest struct {
	Name                string                 `json:"name" validate:"required"`
	Description         string                 `json:"description"`
	Type                string                 `json:"workflow_type" validate:"required,oneof=sequential percentage hybrid"`
	PercentageThreshold int                    `json:"percentage_threshold,omitempty"`
	SequentialRules     []SequentialRuleInput  `json:"sequential_rules,omitempty" validate:"dive"`
	ConditionalRules    []ConditionalRuleInput `json:"conditional_rules,omitempty" validate:"dive"`
}

// UpdateWorkflowRequest replaces a workflow's definition. Rules are replaced
// wholesale; in-flight expenses keep evaluating against their recorded chain.
type UpdateWorkflowRequest struct {
	Name                string                 `json:"name" validate:"required"`
	Description         string                 `json:"description"`
	Type                string                 `json:"workflow_type" validate:"required,oneof=sequential percentage hybrid"`
	PercentageThreshold int                    `json:"percentage_threshold,omitempty"`
	SequentialRules     []SequentialRuleInput  `json:"sequential_rules,omitempty" validate:"dive"`
	ConditionalRules    []ConditionalRuleInput `json:"conditional_rules,omitempty" validate:"dive"`
}
