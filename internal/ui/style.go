package ui

import "github.com/gdamore/tcell/v2"

var (
	StyleBox      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	StyleText     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	StyleAddr     = tcell.StyleDefault.Foreground(tcell.ColorLightCyan)
	StyleMatch    = tcell.StyleDefault.Background(tcell.ColorGreenYellow).Foreground(tcell.ColorBlack).Bold(true)
	StyleSelected = tcell.StyleDefault.Background(tcell.ColorDarkCyan).Foreground(tcell.ColorWhite).Bold(true)
	StyleDim      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	StyleFail     = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)
