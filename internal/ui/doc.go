// Package ui implements the interactive recovery prompt using bubbletea's Elm architecture.
//
// A [RecoveryModel] shows a failure's user-facing message and the actions from its
// recommendation, then reports which [resilience.Effect] the user picked. Acting on the
// effect (re-running a command, opening a browser) is left to the caller.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, q) plus numeric shortcuts,
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
