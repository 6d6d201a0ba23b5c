package controller

import (
	"context"

	"github.com/conneroisu/blockfactory/internal/model"
)

// Affordances is the selection-dependent state a view shows: which
// buttons are enabled and what is selected.
type Affordances struct {
	Mode       Mode       `json:"mode"`
	SelectedID string     `json:"selectedId,omitempty"`
	Kind       model.Kind `json:"kind,omitempty"`
	Index      int        `json:"index"`
	Count      int        `json:"count"`

	CanEdit     bool `json:"canEdit"`
	CanDelete   bool `json:"canDelete"`
	CanMoveUp   bool `json:"canMoveUp"`
	CanMoveDown bool `json:"canMoveDown"`

	// Disabled is set when nothing is selected.
	Disabled bool `json:"disabled"`
}

// View renders the toolbox list. The controller calls it after every
// change; implementations must not call back into the controller.
type View interface {
	UpdateAffordances(a Affordances)
	ListChanged(elems []model.ElementInfo, selectedID string)
}

// NopView ignores every update.
type NopView struct{}

func (NopView) UpdateAffordances(Affordances) {}

func (NopView) ListChanged([]model.ElementInfo, string) {}

// Prompter asks the user questions. A false second return from PromptName
// means the user declined.
type Prompter interface {
	PromptName(ctx context.Context, message, def string) (string, bool)
	Confirm(ctx context.Context, message string) bool
	Alert(ctx context.Context, message string)
}

// DeclinePrompter declines every prompt. It is the default for sessions
// without a user, which then use the non-interactive operations.
type DeclinePrompter struct{}

func (DeclinePrompter) PromptName(context.Context, string, string) (string, bool) { return "", false }

func (DeclinePrompter) Confirm(context.Context, string) bool { return false }

func (DeclinePrompter) Alert(context.Context, string) {}
