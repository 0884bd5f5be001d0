package ui

import "github.com/gdamore/tcell/v2"

const (
	listWidth   = 24
	boxPaddingX = 2
	bytesPerRow = 16
	hexRowWidth = 10 + bytesPerRow*3 + 1 + bytesPerRow // "XXXXXXXX  " + hex + gap + ascii
)

type UILayout struct {
	Rows     int
	ListX    int
	ListW    int
	HexX     int
	HexW     int
	BoxY     int
	BoxH     int
	HelpY    int
	PaddingX int
}

func ComputeLayout(screenW, screenH int) UILayout {
	const fixedRows = 3 + 2 + 1 // title, borders, help
	rows := max(screenH-fixedRows, 1)

	hexW := hexRowWidth + boxPaddingX*2
	total := listWidth + hexW
	startX := max((screenW-total)/2, 0)

	return UILayout{
		Rows:     rows,
		ListX:    startX,
		ListW:    listWidth,
		HexX:     startX + listWidth,
		HexW:     hexW,
		BoxY:     3,
		BoxH:     rows + 2,
		HelpY:    3 + rows + 2,
		PaddingX: boxPaddingX,
	}
}

func DrawBox(s tcell.Screen, x, y, w, h int, style tcell.Style, title string) {
	s.SetContent(x, y, '┌', nil, style)
	for i := 1; i < w-1; i++ {
		s.SetContent(x+i, y, '─', nil, style)
	}
	s.SetContent(x+w-1, y, '┐', nil, style)

	for j := 1; j < h-1; j++ {
		s.SetContent(x, y+j, '│', nil, style)
		s.SetContent(x+w-1, y+j, '│', nil, style)
	}

	s.SetContent(x, y+h-1, '└', nil, style)
	for i := 1; i < w-1; i++ {
		s.SetContent(x+i, y+h-1, '─', nil, style)
	}
	s.SetContent(x+w-1, y+h-1, '┘', nil, style)

	if title != "" && len(title)+4 < w {
		DrawText(s, x+2, y, style, " "+title+" ")
	}
}

// DrawText draws text from x and returns the column after it.
func DrawText(s tcell.Screen, x, y int, style tcell.Style, text string) int {
	i := 0
	for _, r := range text {
		s.SetContent(x+i, y, r, nil, style)
		i++
	}
	return x + i
}

func DrawTextCentered(s tcell.Screen, centerX, y int, style tcell.Style, text string) {
	startX := centerX - len(text)/2
	DrawText(s, startX, y, style, text)
}
