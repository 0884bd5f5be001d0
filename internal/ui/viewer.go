package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/s-hammon/p"
	"github.com/s-hammon/pescan"
)

// HexRow is one line of a hex dump. Highlight marks bytes inside the span
// being viewed.
type HexRow struct {
	Address   uint64
	Bytes     []byte
	Highlight []bool
}

// HexRows dumps span plus context bytes either side, in rows of width bytes
// aligned to the buffer. Addresses are in the image's declared address space.
func HexRows(img *pescan.Image, span pescan.Span, context, width int) []HexRow {
	data := img.Bytes()
	if width <= 0 || len(data) == 0 {
		return nil
	}

	lo := max(span.Offset-context, 0)
	lo -= lo % width
	hi := min(span.Offset+span.Len+context, len(data))

	var rows []HexRow
	for off := lo; off < hi; off += width {
		end := min(off+width, len(data))
		row := HexRow{
			Address:   img.Base() + uint64(off),
			Bytes:     data[off:end],
			Highlight: make([]bool, end-off),
		}
		for i := range row.Highlight {
			pos := off + i
			row.Highlight[i] = pos >= span.Offset && pos < span.Offset+span.Len
		}
		rows = append(rows, row)
	}

	return rows
}

// String renders the row as address, hex bytes and printable ASCII.
func (r HexRow) String() string {
	var sb strings.Builder
	sb.WriteString(p.Format("%08X  ", r.Address))
	for i := range bytesPerRow {
		if i < len(r.Bytes) {
			sb.WriteString(p.Format("%02X ", r.Bytes[i]))
		} else {
			sb.WriteString("   ")
		}
	}
	sb.WriteByte(' ')
	for _, b := range r.Bytes {
		if b >= 0x20 && b < 0x7F {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// RunViewer shows spans of img on an initialized screen until the user quits.
// The caller owns the screen and finalizes it.
func RunViewer(s tcell.Screen, img *pescan.Image, spans []pescan.Span, title string) error {
	var sel, top int

	redraw := func() {
		s.Clear()

		scrW, scrH := s.Size()
		layout := ComputeLayout(scrW, scrH)

		// Title box
		header := p.Format("%s  base %#x  size %#x  %d matches", title, img.Base(), img.Size(), len(spans))
		DrawBox(s, layout.ListX, 0, layout.ListW+layout.HexW, 3, StyleBox, "PESCAN")
		DrawText(s, layout.ListX+layout.PaddingX, 1, StyleText, header)

		// Match list
		DrawBox(s, layout.ListX, layout.BoxY, layout.ListW, layout.BoxH, StyleBox, "MATCHES")
		if sel < top {
			top = sel
		}
		if sel >= top+layout.Rows {
			top = sel - layout.Rows + 1
		}
		for r := range layout.Rows {
			idx := top + r
			if idx >= len(spans) {
				break
			}
			style := StyleText
			if idx == sel {
				style = StyleSelected
			}
			cell := p.Format("%4d %#08x", idx, img.Base()+uint64(spans[idx].Offset))
			DrawText(s, layout.ListX+1, layout.BoxY+1+r, style, cell)
		}

		// Bytes around the selected match
		DrawBox(s, layout.HexX, layout.BoxY, layout.HexW, layout.BoxH, StyleBox, "BYTES")
		if len(spans) == 0 {
			DrawText(s, layout.HexX+layout.PaddingX, layout.BoxY+1, StyleFail, "no matches")
		} else {
			context := max(layout.Rows/2-1, 0) * bytesPerRow
			rows := HexRows(img, spans[sel], context, bytesPerRow)
			for r, row := range rows {
				if r >= layout.Rows {
					break
				}
				drawRow(s, layout.HexX+layout.PaddingX, layout.BoxY+1+r, row)
			}
		}

		// Help line
		help := "Esc/Ctrl+C: quit  |  Up/Down: select  |  PgUp/PgDn: page  |  Home/End"
		DrawTextCentered(s, scrW/2, layout.HelpY, StyleDim, help)
		s.Show()
	}

	redraw()

	for {
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			_, scrH := s.Size()
			page := ComputeLayout(0, scrH).Rows

			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return nil
			case tcell.KeyUp:
				sel--
			case tcell.KeyDown:
				sel++
			case tcell.KeyPgUp:
				sel -= page
			case tcell.KeyPgDn:
				sel += page
			case tcell.KeyHome:
				sel = 0
			case tcell.KeyEnd:
				sel = len(spans) - 1
			case tcell.KeyRune:
				if ev.Rune() == 'q' {
					return nil
				}
			}
			sel = max(min(sel, len(spans)-1), 0)

			redraw()
		case *tcell.EventResize:
			s.Sync()
			redraw()
		}
	}
}

func drawRow(s tcell.Screen, x, y int, row HexRow) {
	x = DrawText(s, x, y, StyleAddr, p.Format("%08X  ", row.Address))
	for i, b := range row.Bytes {
		style := StyleText
		if row.Highlight[i] {
			style = StyleMatch
		}
		x = DrawText(s, x, y, style, p.Format("%02X", b))
		x = DrawText(s, x, y, StyleText, " ")
	}
}
