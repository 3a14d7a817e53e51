package cmd

import "github.com/fatih/color"

// Colors are dropped automatically when stdout is not a terminal or NO_COLOR is set.
var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed, color.Bold)
)
