package watchdog

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// RelaunchTemplate is the shape of a relaunch directive: a command with one
// %s placeholder and the qualifier that fills it on hosts with user-scoped
// services.
type RelaunchTemplate struct {
	Command       string
	UserQualifier string
}

// DirectiveBuilder produces the relaunch directive for each launch attempt.
// userScope is resolved once at startup; the template may be swapped on
// config reload and only affects later attempts.
type DirectiveBuilder struct {
	template  atomic.Pointer[RelaunchTemplate]
	userScope bool
}

func NewDirectiveBuilder(tmpl RelaunchTemplate, userScope bool) *DirectiveBuilder {
	b := &DirectiveBuilder{userScope: userScope}
	b.template.Store(&tmpl)
	return b
}

// Update replaces the template used by subsequent Build calls.
func (b *DirectiveBuilder) Update(tmpl RelaunchTemplate) {
	b.template.Store(&tmpl)
}

// Build returns the directive string for one launch attempt.
func (b *DirectiveBuilder) Build() string {
	tmpl := b.template.Load()

	qualifier := ""
	if b.userScope {
		qualifier = tmpl.UserQualifier
	}
	return strings.TrimSpace(fmt.Sprintf(tmpl.Command, qualifier))
}
