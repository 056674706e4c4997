package digest

import (
	"strings"

	"sessionbooking/internal/models"
)

const (
	timeLayout     = "15:04z"
	textDayLayout  = "Monday Jan 02: "
	htmlDateLayout = "Jan 02"

	htmlTableOpen  = `<table style="border-collapse: collapse; width: 400px"><tbody>`
	htmlTableClose = `<tr style="border-top: 1pt solid black"><td>&nbsp;</td><td>&nbsp;</td><td>&nbsp;</td><td>&nbsp;</td></tr></tbody></table>`
	htmlCell       = `<td style="width: 100px">`
)

// FormatPostings renders posted slots as a plain-text digest and an HTML table.
// Slots are rendered in the given order, in UTC. Consecutive slots falling on the
// same weekday share a text line and an HTML block.
func FormatPostings(slots []models.Slot) (text, html string) {
	var tb, hb strings.Builder
	hb.WriteString(htmlTableOpen)

	previousDay := ""
	for _, slot := range slots {
		start := slot.StartTime.UTC()
		end := slot.EndTime.UTC()
		day := start.Weekday().String()
		sameDay := day == previousDay

		if sameDay {
			tb.WriteString(", ")
		} else {
			tb.WriteString("\n")
			tb.WriteString(start.Format(textDayLayout))
		}
		tb.WriteString(start.Format(timeLayout))
		tb.WriteString(" - ")
		tb.WriteString(end.Format(timeLayout))

		if sameDay {
			hb.WriteString(`<tr>`)
			hb.WriteString(htmlCell)
			hb.WriteString(`&nbsp;</td><td>&nbsp;`)
		} else {
			hb.WriteString(`<tr style="border-top: 1pt solid black">`)
			hb.WriteString(htmlCell)
			hb.WriteString(day)
			hb.WriteString(` </td><td style="width: 100px;">`)
			hb.WriteString(start.Format(htmlDateLayout))
		}
		hb.WriteString(`</td>`)
		hb.WriteString(htmlCell)
		hb.WriteString(start.Format(timeLayout))
		hb.WriteString(`</td>`)
		hb.WriteString(htmlCell)
		hb.WriteString(end.Format(timeLayout))
		hb.WriteString(`</td></tr>`)

		previousDay = day
	}

	hb.WriteString(htmlTableClose)
	return tb.String(), hb.String()
}
